// Package common holds the small fixed-width identifiers shared across the
// staged-sync core: block hashes, transaction hashes and account addresses.
// The RLP codec and the rest of the wire format live outside this core (see
// spec.md §6); this package only fixes the byte widths the core depends on.
package common

import (
	"encoding/hex"
	"fmt"
)

const (
	// HashLength is the expected length of a HeaderHash/TxnHash in bytes.
	HashLength = 32
	// AddressLength is the expected length of an Address in bytes.
	AddressLength = 20
)

// Hash is a 32-byte opaque identifier (block header hash, txn hash, ...).
type Hash [HashLength]byte

func (h Hash) Bytes() []byte   { return h[:] }
func (h Hash) String() string  { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) IsZero() bool    { return h == Hash{} }

// BytesToHash copies b into a Hash, erroring if b is not exactly
// HashLength bytes long.
func BytesToHash(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLength {
		return h, fmt.Errorf("invalid hash length: got %d want %d", len(b), HashLength)
	}
	copy(h[:], b)
	return h, nil
}

// Address is a 20-byte account identifier, the low 20 bytes of the
// Keccak-256 hash of an uncompressed ECDSA public key.
type Address [AddressLength]byte

func (a Address) Bytes() []byte  { return a[:] }
func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

func BytesToAddress(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("invalid address length: got %d want %d", len(b), AddressLength)
	}
	copy(a[:], b)
	return a, nil
}

// ByteCount renders a byte size the way the teacher's log lines render
// memory stats (see stage_log_index.go's use of libcommon.ByteCount).
func ByteCount(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
