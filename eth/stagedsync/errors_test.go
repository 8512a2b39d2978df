package stagedsync_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/chainsync/eth/stagedsync"
)

func TestAsResultCodeNilIsSuccess(t *testing.T) {
	t.Parallel()
	require.Equal(t, stagedsync.Success, stagedsync.AsResultCode(nil))
}

func TestAsResultCodeUnwrapsTypedError(t *testing.T) {
	t.Parallel()
	err := stagedsync.NewError(stagedsync.BadBlockHash, errors.New("boom"))
	require.Equal(t, stagedsync.BadBlockHash, stagedsync.AsResultCode(err))

	wrapped := errorsWrap(err)
	require.Equal(t, stagedsync.BadBlockHash, stagedsync.AsResultCode(wrapped))
}

// TestAsResultCodeDefaultsToUnexpected covers §7's "any unrecognized
// thrown condition is mapped to unexpected_error" rule for an error never
// produced through NewError.
func TestAsResultCodeDefaultsToUnexpected(t *testing.T) {
	t.Parallel()
	require.Equal(t, stagedsync.UnexpectedError, stagedsync.AsResultCode(errors.New("raw")))
}

func TestErrorOrNilSuccessIsNil(t *testing.T) {
	t.Parallel()
	require.NoError(t, stagedsync.ErrorOrNil(stagedsync.Success, errors.New("ignored")))
}

func TestErrorOrNilNonSuccessCarriesCode(t *testing.T) {
	t.Parallel()
	err := stagedsync.ErrorOrNil(stagedsync.DBError, errors.New("disk full"))
	require.Error(t, err)
	require.Equal(t, stagedsync.DBError, stagedsync.AsResultCode(err))
}

func errorsWrap(err error) error {
	return errWrapper{err}
}

type errWrapper struct{ err error }

func (w errWrapper) Error() string { return "wrapped: " + w.err.Error() }
func (w errWrapper) Unwrap() error { return w.err }
