package kv

// Table name constants, grounded on the naming convention in the teacher's
// erigon-lib/kv/tables.go (CamelCase Go identifier); here each physical
// table name is the same CamelCase string. Only the subset spec.md §6 names is declared here -
// the rest of the teacher's ~70-table schema belongs to modules out of this
// core's scope (state history, receipts, bodies payload storage, txpool).

const (
	// CanonicalHashes maps BlockNum (8-byte big-endian) -> HeaderHash (32
	// bytes), the canonical chain's forward index. Populated externally;
	// this core only reads it.
	CanonicalHashes = "CanonicalHashes"

	// HeaderNumbers is the inverse index BlockHashes builds: HeaderHash (32
	// bytes) -> BlockNum (8-byte big-endian).
	HeaderNumbers = "HeaderNumbers"

	// BlockBodies holds the encoded transaction list for a canonical block,
	// keyed by BlockNum||HeaderHash. Read-only external input to Senders;
	// decoding is delegated to the BodyReader collaborator (spec.md §6).
	BlockBodies = "BlockBodies"

	// Senders maps BlockNum (8-byte big-endian) -> concatenated recovered
	// sender Addresses, one 20-byte entry per transaction in block order.
	Senders = "Senders"

	// SyncStageProgress maps StageID -> BlockNum (8-byte big-endian), the
	// forward-progress watermark the Registry persists (spec.md §4.A).
	SyncStageProgress = "SyncStageProgress"

	// SyncStagePruneProgress maps StageID -> BlockNum, the prune watermark.
	SyncStagePruneProgress = "SyncStagePruneProgress"
)
