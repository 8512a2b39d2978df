// Package types holds the transaction representation the Senders stage
// consumes. RLP decoding and signing-hash construction are external
// collaborators (spec.md §6): this core never parses the wire format and
// never re-encodes a transaction, it only recovers a sender address from
// an already-decoded signature and signing hash.
package types

import "github.com/holiman/uint256"

// TxType identifies which signing-domain rules produced SigningHash.
type TxType uint8

const (
	LegacyTxType TxType = iota
	AccessListTxType
	DynamicFeeTxType
)

// DecodedTxn is the per-transaction input the Senders stage requires,
// grounded on the Recovery Package tuple from the data model:
// (block_num, txn_index_in_block, signing_hash, r, s, v_parity, chain_id).
type DecodedTxn struct {
	Type        TxType
	ChainID     uint64
	SigningHash [32]byte
	R, S        *uint256.Int
	VParity     bool
}

// BlockBody is one canonical block's ordered transaction list, the unit a
// BodyReader yields per block.
type BlockBody struct {
	BlockNum uint64
	Hash     [32]byte
	Txns     []DecodedTxn
}

// BodyReader is the external collaborator that turns the raw
// BlockBodies table rows into decoded transactions. Its implementation -
// RLP parsing, per-type signing-hash construction - lives outside this
// core (spec.md §1 excludes the RLP codec); the Senders stage only
// depends on this interface.
type BodyReader interface {
	// ReadBody returns the decoded body for the canonical block at num,
	// or ok=false if no body is present (e.g. genesis).
	ReadBody(num uint64) (body BlockBody, ok bool, err error)
}
