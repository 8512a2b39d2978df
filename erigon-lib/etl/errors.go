package etl

import "errors"

// Sentinel errors a Collector's Collect/Load can return. The stagedsync
// package maps these onto the ResultCode taxonomy (db_error,
// decoding_error, bad_chain_sequence respectively) at the stage boundary;
// etl itself knows nothing about stages or ResultCodes.
var (
	// ErrStorageFull is returned when creating or writing a sorted run file
	// fails for any reason, a full filesystem included.
	ErrStorageFull = errors.New("etl: storage full while flushing sorted run")

	// ErrCorruptRun is returned when reading back a spilled sorted run
	// encounters a short read or a checksum mismatch.
	ErrCorruptRun = errors.New("etl: corrupt sorted run")

	// ErrNonMonotoneAppend is returned by Load when mode is AppendMode and
	// the sorted entry stream does not strictly increase in key order -
	// the only way that can happen given entries are always emitted in
	// sorted order is a duplicate key, which an append-only destination
	// cannot accept.
	ErrNonMonotoneAppend = errors.New("etl: append mode requires strictly increasing keys")

	// ErrKeyTooLarge and ErrValueTooLarge enforce the Collector Entry size
	// bounds from the data model (key <= 4096 B, value <= 1 MiB).
	ErrKeyTooLarge   = errors.New("etl: key exceeds maximum length")
	ErrValueTooLarge = errors.New("etl: value exceeds maximum length")
)
