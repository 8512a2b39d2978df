// Package senders implements the Senders stage's recovery farm: a
// bounded-ceiling worker pool that turns (signing_hash, r, s, v_parity)
// tuples into recovered 20-byte sender addresses, reassembling results
// into their original block/transaction order. Grounded on the ECDSA
// recovery call sequence in erigon-lib/types/txn.go's sender-extraction
// path (secp256k1.RecoverPubkeyWithContext followed by Keccak-256 over the
// uncompressed public key).
package senders

import (
	"fmt"

	"github.com/erigontech/secp256k1"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/erigontech/chainsync/erigon-lib/common"
)

// secp256k1HalfN is the curve order's midpoint, n/2, used by the EIP-2
// signature-malleability check: a valid signature must have s <= n/2.
var secp256k1HalfN = uint256.MustFromHex(
	"0x7FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF5D576E7357A4501DDFE92F46681B20A0")

// RecoveryPackage is the per-transaction unit of work a worker consumes,
// grounded on the Recovery Package tuple from the data model:
// (block_num, txn_index_in_block, signing_hash, r, s, v_parity, chain_id).
// Homestead is resolved by the caller from chain.Config.IsHomestead(BlockNum)
// once, at submission time, so a worker never needs the fork schedule itself.
type RecoveryPackage struct {
	BlockNum    uint64
	TxnIndex    int
	SigningHash [32]byte
	R, S        *uint256.Int
	VParity     bool
	ChainID     uint64
	Homestead   bool
}

// Recover validates the signature's EIP-2 malleability bound - only on
// packages past the chain's Homestead activation, matching Frontier's
// wider accepted range of s before it - and recovers the sender address.
// Packages a worker receives are processed one at a time; this function
// performs no I/O and is safe to call concurrently from multiple workers
// against distinct packages.
func Recover(pkg RecoveryPackage) (common.Address, error) {
	if pkg.Homestead && pkg.S.Gt(secp256k1HalfN) {
		return common.Address{}, fmt.Errorf("%w: s exceeds n/2 at block %d txn %d", ErrInvalidTransaction, pkg.BlockNum, pkg.TxnIndex)
	}

	var sig [65]byte
	rb := pkg.R.Bytes32()
	sb := pkg.S.Bytes32()
	copy(sig[0:32], rb[:])
	copy(sig[32:64], sb[:])
	if pkg.VParity {
		sig[64] = 1
	}

	pub, err := secp256k1.RecoverPubkeyWithContext(secp256k1.DefaultContext, pkg.SigningHash[:], sig[:], nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s at block %d txn %d", ErrInvalidTransaction, err, pkg.BlockNum, pkg.TxnIndex)
	}
	if len(pub) != 65 {
		return common.Address{}, fmt.Errorf("%w: unexpected pubkey length %d", ErrInvalidTransaction, len(pub))
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(pub[1:])
	var sum [32]byte
	h.Sum(sum[:0])

	var addr common.Address
	copy(addr[:], sum[12:32])
	return addr, nil
}
