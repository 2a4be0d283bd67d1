// Package ledger owns all mutable position state. Positions move
// Open -> Closed exactly once; every closed position produces exactly
// one trade outcome, kept in a bounded history.
package ledger

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/idhash"
)

// Ledger errors. All are recoverable: the caller logs and skips the
// triggering decision.
var (
	ErrDuplicatePosition = errors.New("position already open for token")
	ErrCapacityExceeded  = errors.New("max open positions reached")
	ErrPositionTooLarge  = errors.New("position exceeds max size")
	ErrPositionNotFound  = errors.New("no open position for token")
	ErrInvalidOrder      = errors.New("entry price and quantity must be positive")
)

// DefaultMaxHistory bounds the trade outcome ring buffer.
const DefaultMaxHistory = 500

// Config parameterizes the ledger.
type Config struct {
	MaxPositions        int
	MaxPositionSizeUsd  float64
	StopLossPct         float64
	TakeProfitPct       float64
	TrailingStopEnabled bool
	TrailingStopPct     float64
	MaxHistory          int // 0 means DefaultMaxHistory
}

// Subscriber receives ordered lifecycle callbacks. Callbacks run
// synchronously inside the ledger's critical section and must not call
// back into the ledger. A panicking subscriber is recovered and logged;
// it never aborts the state transition.
type Subscriber interface {
	OnOpen(p *domain.Position)
	OnTick(p *domain.Position)
	OnExitTriggered(p *domain.Position, reason string)
	OnClose(o *domain.TradeOutcome)
}

// ExitTrigger reports that a tick crossed an exit threshold. The caller
// decides when to close; the ledger only detects.
type ExitTrigger struct {
	TokenAddress string
	Reason       string
	Price        float64
}

// Ledger tracks at most one open position per token. A single mutex
// serializes all mutations, so per-token ticks apply in arrival order
// and peak/stop updates are never lost.
type Ledger struct {
	cfg   Config
	log   zerolog.Logger
	nowMs func() int64
	subs  []Subscriber

	mu      sync.Mutex
	open    map[string]*domain.Position // keyed by token address
	history []*domain.TradeOutcome      // oldest first, bounded
}

// Options configures a Ledger.
type Options struct {
	Config      Config
	Logger      zerolog.Logger
	Subscribers []Subscriber

	// NowMs overrides the clock, used by tests.
	NowMs func() int64
}

// New creates a Ledger.
func New(opts Options) *Ledger {
	cfg := opts.Config
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	l := &Ledger{
		cfg:   cfg,
		log:   opts.Logger,
		nowMs: opts.NowMs,
		subs:  opts.Subscribers,
		open:  make(map[string]*domain.Position),
	}
	if l.nowMs == nil {
		l.nowMs = func() int64 { return time.Now().UnixMilli() }
	}
	return l
}

// Open creates an Open position for the snapshot's token.
// Fails with ErrInvalidOrder, ErrDuplicatePosition, ErrCapacityExceeded,
// or ErrPositionTooLarge; on any failure existing positions are untouched.
func (l *Ledger) Open(token *domain.TokenSnapshot, signal *domain.Signal, quantity, entryPrice float64) (*domain.Position, error) {
	// PnL percentages divide by both; zero would poison every tick.
	if entryPrice <= 0 || quantity <= 0 {
		return nil, ErrInvalidOrder
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.open[token.Address]; exists {
		return nil, ErrDuplicatePosition
	}
	if len(l.open) >= l.cfg.MaxPositions {
		return nil, ErrCapacityExceeded
	}
	invested := entryPrice * quantity
	if invested > l.cfg.MaxPositionSizeUsd {
		return nil, ErrPositionTooLarge
	}

	now := l.nowMs()
	p := &domain.Position{
		ID:             idhash.ComputePositionID(token.Address, now),
		TokenAddress:   token.Address,
		Symbol:         token.Symbol,
		EntryPrice:     entryPrice,
		CurrentPrice:   entryPrice,
		Quantity:       quantity,
		InvestedValue:  invested,
		CurrentValue:   invested,
		StopLoss:       entryPrice * (1 - l.cfg.StopLossPct/100),
		TakeProfit:     entryPrice * (1 + l.cfg.TakeProfitPct/100),
		PeakPrice:      entryPrice,
		EntryLiquidity: token.LiquidityUsd,
		EntrySignal:    signal,
		State:          domain.PositionStateOpen,
		EntryTimeMs:    now,
		LastTickMs:     now,
	}
	l.open[token.Address] = p

	snapshot := *p
	l.notify(func(s Subscriber) { s.OnOpen(&snapshot) })

	return &snapshot, nil
}

// ApplyTick applies a price tick to the token's open position. No-op
// when no position is open. Recomputes value and PnL, ratchets the
// trailing stop, and reports the first exit condition crossed:
// stop-loss is always evaluated before take-profit.
func (l *Ledger) ApplyTick(tokenAddress string, price float64, timestampMs int64) *ExitTrigger {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, exists := l.open[tokenAddress]
	if !exists {
		return nil
	}

	p.CurrentPrice = price
	p.CurrentValue = price * p.Quantity
	p.PnL = p.CurrentValue - p.InvestedValue
	p.PnLPercent = p.PnL / p.InvestedValue * 100
	p.LastTickMs = timestampMs

	if l.cfg.TrailingStopEnabled {
		if price > p.PeakPrice {
			p.PeakPrice = price
		}
		// The stop only ratchets upward; it never relaxes.
		if trail := p.PeakPrice * (1 - l.cfg.TrailingStopPct/100); trail > p.StopLoss {
			p.StopLoss = trail
		}
	}

	snapshot := *p
	l.notify(func(s Subscriber) { s.OnTick(&snapshot) })

	var trigger *ExitTrigger
	if price <= p.StopLoss {
		trigger = &ExitTrigger{TokenAddress: tokenAddress, Reason: domain.ExitReasonStopLoss, Price: price}
	} else if price >= p.TakeProfit {
		trigger = &ExitTrigger{TokenAddress: tokenAddress, Reason: domain.ExitReasonTakeProfit, Price: price}
	}

	if trigger != nil {
		l.notify(func(s Subscriber) { s.OnExitTriggered(&snapshot, trigger.Reason) })
	}

	return trigger
}

// Close transitions the token's open position to Closed and appends a
// TradeOutcome to the bounded history. A position closes exactly once:
// a second Close for the same token fails ErrPositionNotFound because
// the position is no longer tracked as open.
func (l *Ledger) Close(tokenAddress string, exitPrice float64, reason string) (*domain.TradeOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, exists := l.open[tokenAddress]
	if !exists {
		return nil, ErrPositionNotFound
	}

	now := l.nowMs()
	pnl := p.Quantity*exitPrice - p.InvestedValue

	p.State = domain.PositionStateClosed
	p.CurrentPrice = exitPrice
	p.CurrentValue = p.Quantity * exitPrice
	p.PnL = pnl
	p.PnLPercent = pnl / p.InvestedValue * 100
	p.ExitTimeMs = now
	p.ExitReason = reason
	delete(l.open, tokenAddress)

	outcome := &domain.TradeOutcome{
		OutcomeID:      idhash.ComputeOutcomeID(p.ID, now),
		PositionID:     p.ID,
		TokenAddress:   tokenAddress,
		EntrySignal:    p.EntrySignal,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      exitPrice,
		EntryLiquidity: p.EntryLiquidity,
		PnL:            pnl,
		PnLPercent:     p.PnLPercent,
		HoldMinutes:    float64(now-p.EntryTimeMs) / 60_000,
		ExitReason:     reason,
		IsWin:          pnl > 0,
		ClosedAtMs:     now,
	}

	l.history = append(l.history, outcome)
	if len(l.history) > l.cfg.MaxHistory {
		l.history = l.history[len(l.history)-l.cfg.MaxHistory:]
	}

	closed := *outcome
	l.notify(func(s Subscriber) { s.OnClose(&closed) })

	return outcome, nil
}

// Get returns a copy of the token's open position.
func (l *Ledger) Get(tokenAddress string) (*domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, exists := l.open[tokenAddress]
	if !exists {
		return nil, false
	}
	snapshot := *p
	return &snapshot, true
}

// OpenPositions returns copies of all open positions ordered by entry time.
func (l *Ledger) OpenPositions() []*domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]*domain.Position, 0, len(l.open))
	for _, p := range l.open {
		snapshot := *p
		result = append(result, &snapshot)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EntryTimeMs < result[j].EntryTimeMs
	})
	return result
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

// History returns up to limit outcomes, most recent last.
// limit <= 0 means all.
func (l *Ledger) History(limit int) []*domain.TradeOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := l.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	result := make([]*domain.TradeOutcome, len(h))
	for i, o := range h {
		out := *o
		result[i] = &out
	}
	return result
}

// notify fans a callback out to all subscribers. Panics are recovered
// and logged so a broken subscriber never aborts a state transition.
func (l *Ledger) notify(fn func(Subscriber)) {
	for _, s := range l.subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.log.Error().Interface("panic", r).Msg("ledger subscriber panicked")
				}
			}()
			fn(s)
		}()
	}
}
