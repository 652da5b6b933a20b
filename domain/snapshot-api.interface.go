package domain

// SnapshotAPI is the one-shot fetch producing a full book baseline.
type SnapshotAPI interface {
	DepthSnapshot(symbol *MarketSymbol, limit int) (*DepthSnapshot, error)
}
