package domain

// TokenSnapshot is a point-in-time view of a token's market state.
// Snapshots are supplied by the token catalog and never mutated;
// a new snapshot replaces the previous one on the next catalog refresh.
type TokenSnapshot struct {
	Address         string  // token mint address (base58)
	Symbol          string
	LiquidityUsd    float64
	HolderCount     int64
	LPBurned        bool
	MintAuthority   *string // nil when revoked
	FreezeAuthority *string // nil when revoked
	PriceUsd        float64
	PriceChange24h  float64 // percent, signed
	Volume24hUsd    float64
	MarketCapUsd    float64
	TimestampMs     int64 // Unix timestamp in milliseconds
}
