// Package chain holds the small piece of chain configuration the Senders
// stage needs to pick a transaction's signing domain: the chain ID and the
// block at which the EIP-2 malleability restriction activates. Everything
// else a full chain config carries (genesis allocation, consensus engine
// parameters, hard-fork gas-schedule changes) belongs to the EVM/state-
// transition layer, out of this core's scope.
package chain

// Config names the fork-activation height the Senders stage consults when
// deciding whether to enforce EIP-2's signature-malleability bound, plus
// the chain ID (spec.md §6: decoding itself stays external to this core).
type Config struct {
	// ChainID is carried but not read by this core: the Senders stage does
	// not pass it to the BodyReader, and each RecoveryPackage's chain ID is
	// the one the BodyReader reports on the decoded transaction.
	ChainID uint64

	// HomesteadBlock is the first block where EIP-2's s <= n/2 signature
	// malleability restriction applies. Before it, Frontier rules allowed
	// the full curve-order range for s.
	HomesteadBlock uint64
}

// IsHomestead reports whether block num has EIP-2's malleability check
// active.
func (c *Config) IsHomestead(num uint64) bool { return num >= c.HomesteadBlock }
