package domain

// PositionState is the lifecycle state of a simulated position.
type PositionState string

// Position states. Closed is terminal per position id.
const (
	PositionStateOpen   PositionState = "OPEN"
	PositionStateClosed PositionState = "CLOSED"
)

// Exit reason codes.
const (
	ExitReasonStopLoss    = "STOP_LOSS"
	ExitReasonTakeProfit  = "TAKE_PROFIT"
	ExitReasonMaxHoldTime = "MAX_HOLD_TIME"
	ExitReasonManual      = "MANUAL"
)

// Position is a simulated holding of one token. At most one position
// per token address may be in the Open state at any time.
type Position struct {
	ID           string // deterministic hash
	TokenAddress string
	Symbol       string

	EntryPrice     float64
	CurrentPrice   float64
	Quantity       float64
	InvestedValue  float64 // entry_price * quantity
	CurrentValue   float64 // current_price * quantity
	PnL            float64
	PnLPercent     float64
	StopLoss       float64 // monotonic non-decreasing when trailing is enabled
	TakeProfit     float64
	PeakPrice      float64
	EntryLiquidity float64 // pool liquidity at entry, consumed by learning

	EntrySignal *Signal // signal that opened the position

	State       PositionState
	EntryTimeMs int64
	ExitTimeMs  int64  // zero while open
	ExitReason  string // empty while open
	LastTickMs  int64  // timestamp of the most recent applied tick
}
