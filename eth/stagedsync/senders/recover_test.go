package senders_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/chainsync/eth/stagedsync/senders"
)

var secp256k1N = uint256.MustFromHex("0xFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141")

// TestRecoverRejectsMalleableSignature covers the EIP-2 boundary rule:
// s > n/2 must fail with ErrInvalidTransaction before any curve recovery
// is attempted, on a package past Homestead activation (see DESIGN.md for
// why this is resolved per-package from chain.Config.IsHomestead rather
// than unconditionally).
func TestRecoverRejectsMalleableSignature(t *testing.T) {
	t.Parallel()
	// n - 1 is always > n/2 for secp256k1's odd group order.
	sTooHigh := new(uint256.Int).Sub(secp256k1N, uint256.NewInt(1))
	pkg := senders.RecoveryPackage{
		BlockNum:    1,
		TxnIndex:    0,
		SigningHash: [32]byte{1},
		R:           uint256.NewInt(1),
		S:           sTooHigh,
		VParity:     false,
		ChainID:     1,
		Homestead:   true,
	}
	_, err := senders.Recover(pkg)
	require.ErrorIs(t, err, senders.ErrInvalidTransaction)
}

// TestRecoverRejectsUnrecoverableSignature covers a syntactically in-range
// but cryptographically invalid signature (r=s=0 can never be produced by
// ECDSA signing and cannot be recovered from).
func TestRecoverRejectsUnrecoverableSignature(t *testing.T) {
	t.Parallel()
	pkg := senders.RecoveryPackage{
		BlockNum:    1,
		TxnIndex:    0,
		SigningHash: [32]byte{1},
		R:           uint256.NewInt(0),
		S:           uint256.NewInt(0),
		VParity:     false,
		ChainID:     1,
		Homestead:   true,
	}
	_, err := senders.Recover(pkg)
	require.ErrorIs(t, err, senders.ErrInvalidTransaction)
}
