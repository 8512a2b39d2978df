package stagedsync

import (
	"errors"

	perrors "github.com/pkg/errors"
)

// ResultCode is the stable ordinal enumeration every stage invocation
// resolves to. Order matters only for readability; callers must match on
// the named constants, never the numeric value.
type ResultCode int

const (
	Success ResultCode = iota
	UnknownChainID
	UnknownConsensusEngine
	BadBlockHash
	BadChainSequence
	InvalidRange
	InvalidProgress
	InvalidBlock
	InvalidTransaction
	MissingSenders
	DecodingError
	UnexpectedError
	UnknownError
	DBError
	Aborted
	NotImplemented
)

func (c ResultCode) String() string {
	switch c {
	case Success:
		return "success"
	case UnknownChainID:
		return "unknown_chain_id"
	case UnknownConsensusEngine:
		return "unknown_consensus_engine"
	case BadBlockHash:
		return "bad_block_hash"
	case BadChainSequence:
		return "bad_chain_sequence"
	case InvalidRange:
		return "invalid_range"
	case InvalidProgress:
		return "invalid_progress"
	case InvalidBlock:
		return "invalid_block"
	case InvalidTransaction:
		return "invalid_transaction"
	case MissingSenders:
		return "missing_senders"
	case DecodingError:
		return "decoding_error"
	case UnexpectedError:
		return "unexpected_error"
	case DBError:
		return "db_error"
	case Aborted:
		return "aborted"
	case NotImplemented:
		return "not_implemented"
	default:
		return "unknown_error"
	}
}

// Error is a ResultCode carrying the underlying cause, returned by a stage
// boundary wherever a non-success condition needs to travel as a Go error
// (e.g. up through the Sync driver to its caller).
type Error struct {
	Code  ResultCode
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps cause (which may be nil) with code, using pkg/errors so
// the stack trace at the point of failure survives into logs - the
// teacher's stage code wraps KV and disk errors with fmt.Errorf("%w", ...)
// or errors.Wrap throughout (see stage_log_index.go's "getting last
// executed block: %w" and similar).
func NewError(code ResultCode, cause error) *Error {
	if cause != nil {
		cause = perrors.WithStack(cause)
	}
	return &Error{Code: code, Cause: cause}
}

// ErrorOrNil is this core's success_or_throw (spec.md §7): given a
// stage's resolved ResultCode and the error (if any) that produced it, it
// returns nil for Success and a typed *Error otherwise, for call sites
// that decide an outcome's code first and want to throw it as a Go error
// second.
func ErrorOrNil(code ResultCode, cause error) error {
	if code == Success {
		return nil
	}
	return NewError(code, cause)
}

// AsResultCode extracts the ResultCode carried by err, defaulting to
// UnexpectedError for any error not produced through NewError - the
// "any unrecognized thrown condition inside a stage is caught at the
// stage boundary and mapped to unexpected_error" rule from §7.
func AsResultCode(err error) ResultCode {
	if err == nil {
		return Success
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return UnexpectedError
}
