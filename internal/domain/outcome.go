package domain

// TradeOutcome is the immutable result of one closed position. It is the
// training record consumed exactly once by the learning model and then
// persisted append-only.
type TradeOutcome struct {
	OutcomeID    string // deterministic hash
	PositionID   string
	TokenAddress string

	EntrySignal    *Signal // snapshot of the signal that opened the position
	EntryPrice     float64
	ExitPrice      float64
	EntryLiquidity float64

	PnL         float64
	PnLPercent  float64
	HoldMinutes float64
	ExitReason  string
	IsWin       bool

	ClosedAtMs int64
}
