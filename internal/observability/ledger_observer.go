package observability

import (
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/ledger"
)

// LedgerObserver exports ledger lifecycle events as metrics.
type LedgerObserver struct {
	m *Metrics
}

var _ ledger.Subscriber = (*LedgerObserver)(nil)

// NewLedgerObserver creates an observer backed by m.
func NewLedgerObserver(m *Metrics) *LedgerObserver {
	return &LedgerObserver{m: m}
}

func (o *LedgerObserver) OnOpen(*domain.Position) {
	o.m.PositionsOpened.Inc()
	o.m.OpenPositions.Inc()
}

func (o *LedgerObserver) OnTick(*domain.Position) {
	o.m.TicksApplied.Inc()
}

func (o *LedgerObserver) OnExitTriggered(*domain.Position, string) {}

func (o *LedgerObserver) OnClose(out *domain.TradeOutcome) {
	o.m.PositionsClosed.WithLabelValues(out.ExitReason).Inc()
	o.m.OpenPositions.Dec()
	o.m.TradePnLUsd.Observe(out.PnL)
}
