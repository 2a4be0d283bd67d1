// Package orchestrator wires the scorer, learning model, ledger, and
// price feed into the simulated trading loop.
// Flow: evaluate snapshot → signal → open position → ticks → exit → learn
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"solana-trade-engine/internal/catalog"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/feed"
	"solana-trade-engine/internal/learning"
	"solana-trade-engine/internal/ledger"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/storage"
)

const dayMs = 24 * 60 * 60 * 1000

// defaultSweepInterval is how often open positions are checked against
// the max hold time.
const defaultSweepInterval = time.Minute

var validate = validator.New()

// ModelPublisher receives the model state after each learning update.
type ModelPublisher interface {
	PublishModelUpdated(*domain.ModelState)
}

// DailyBudget reports usage of the rolling 24h trade budget. The
// window is anchored at the first trade after the previous window
// expired, not at midnight.
type DailyBudget struct {
	Used          int
	Limit         int
	WindowStartMs int64
}

// Options configures an Engine.
type Options struct {
	// Required
	Config domain.TradingConfig
	Model  *learning.Model
	Feed   feed.PriceFeed

	// Optional
	Catalog           catalog.TokenCatalog
	OutcomeStore      storage.OutcomeStore
	Metrics           *observability.Metrics
	Publisher         ModelPublisher
	LedgerSubscribers []ledger.Subscriber
	Logger            zerolog.Logger
	SweepInterval     time.Duration

	// NowMs overrides the clock, used by tests.
	NowMs func() int64
}

// Engine is the simulation orchestrator. One Engine owns one simulated
// account: its balance, its rolling trade budget, and the feed
// subscriptions of its open positions.
type Engine struct {
	cfg    domain.TradingConfig
	model  *learning.Model
	ledger *ledger.Ledger
	feed   feed.PriceFeed

	catalog      catalog.TokenCatalog
	outcomeStore storage.OutcomeStore
	metrics      *observability.Metrics
	publisher    ModelPublisher
	log          zerolog.Logger
	nowMs        func() int64
	sweepEvery   time.Duration

	// account state, one mutex for balance, budget, and subscriptions
	mu            sync.Mutex
	balanceUsd    float64
	budgetUsed    int
	budgetStartMs int64
	unsubs        map[string]func()

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// New validates the trading config and assembles the engine. An
// invalid config is a construction error, not a runtime skip.
func New(opts Options) (*Engine, error) {
	if err := validate.Struct(&opts.Config); err != nil {
		return nil, fmt.Errorf("invalid trading config: %w", err)
	}
	if opts.Config.YellowThreshold > opts.Config.GreenThreshold {
		return nil, fmt.Errorf("invalid trading config: yellow threshold %v exceeds green threshold %v",
			opts.Config.YellowThreshold, opts.Config.GreenThreshold)
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("feed is required")
	}

	nowMs := opts.NowMs
	if nowMs == nil {
		nowMs = func() int64 { return time.Now().UnixMilli() }
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.NewMemoryCatalog()
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}

	e := &Engine{
		cfg:          opts.Config,
		model:        opts.Model,
		feed:         opts.Feed,
		catalog:      cat,
		outcomeStore: opts.OutcomeStore,
		metrics:      opts.Metrics,
		publisher:    opts.Publisher,
		log:          opts.Logger,
		nowMs:        nowMs,
		sweepEvery:   sweep,
		balanceUsd:   opts.Config.InitialBalanceUsd,
		unsubs:       make(map[string]func()),
		done:         make(chan struct{}),
	}

	e.ledger = ledger.New(ledger.Options{
		Config: ledger.Config{
			MaxPositions:        opts.Config.MaxPositions,
			MaxPositionSizeUsd:  opts.Config.MaxPositionSizeUsd,
			StopLossPct:         opts.Config.StopLossPct,
			TakeProfitPct:       opts.Config.TakeProfitPct,
			TrailingStopEnabled: opts.Config.TrailingStopEnabled,
			TrailingStopPct:     opts.Config.TrailingStopPct,
		},
		Logger:      opts.Logger,
		Subscribers: opts.LedgerSubscribers,
		NowMs:       nowMs,
	})

	if e.metrics != nil {
		e.metrics.AccountBalanceUsd.Set(e.balanceUsd)
		e.metrics.ObserveModel(e.model.State())
	}

	return e, nil
}

// Start launches the max hold time sweeper.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-e.done:
				return
			case <-ticker.C:
				e.sweepExpired()
			}
		}
	}()
}

// Stop halts the sweeper and cancels all feed subscriptions. Open
// positions stay open; the caller decides whether to close them.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	for token, unsub := range e.unsubs {
		unsub()
		delete(e.unsubs, token)
	}
}

// EvaluateToken scores a snapshot through the learned model and, for a
// green signal, tries to open a position and watch its price. Rejected
// opens (budget, funds, ledger limits) are logged and skipped; the
// signal is still returned.
func (e *Engine) EvaluateToken(ctx context.Context, snapshot *domain.TokenSnapshot) (*domain.Signal, *domain.Position, error) {
	if err := e.catalog.Upsert(snapshot); err != nil {
		return nil, nil, fmt.Errorf("catalog upsert: %w", err)
	}

	sig, downgraded := e.model.WeightedSignal(snapshot)
	if e.metrics != nil {
		e.metrics.ObserveSignal(sig)
		if downgraded {
			e.metrics.SignalsDowngraded.Inc()
		}
	}
	e.log.Debug().
		Str("token", snapshot.Address).
		Str("classification", string(sig.Classification)).
		Float64("confidence", sig.Confidence).
		Float64("risk_score", sig.RiskScore).
		Msg("token evaluated")

	if sig.Classification != domain.ClassificationGreen {
		return sig, nil, nil
	}

	pos := e.tryOpen(snapshot, sig)
	return sig, pos, nil
}

// ClosePosition closes the token's position at its last seen price.
func (e *Engine) ClosePosition(ctx context.Context, tokenAddress string) (*domain.TradeOutcome, error) {
	pos, ok := e.ledger.Get(tokenAddress)
	if !ok {
		return nil, ledger.ErrPositionNotFound
	}
	outcome := e.closeAndRecord(ctx, tokenAddress, pos.CurrentPrice, domain.ExitReasonManual)
	if outcome == nil {
		return nil, ledger.ErrPositionNotFound
	}
	return outcome, nil
}

// OpenPositions returns the currently open positions.
func (e *Engine) OpenPositions() []*domain.Position {
	return e.ledger.OpenPositions()
}

// TradeHistory returns up to limit recent outcomes, most recent last.
func (e *Engine) TradeHistory(limit int) []*domain.TradeOutcome {
	return e.ledger.History(limit)
}

// LearningStats returns a copy of the model state.
func (e *Engine) LearningStats() *domain.ModelState {
	return e.model.State()
}

// Balance returns the simulated account balance in USD.
func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balanceUsd
}

// DailyBudget returns usage of the rolling 24h trade budget.
func (e *Engine) DailyBudget() DailyBudget {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowMs()
	used := e.budgetUsed
	start := e.budgetStartMs
	if start != 0 && now-start >= dayMs {
		used = 0
		start = 0
	}
	return DailyBudget{Used: used, Limit: e.cfg.MaxDailyTrades, WindowStartMs: start}
}

// tryOpen sizes and opens a position for a green signal. All failures
// are skips: the engine keeps trading on other tokens.
func (e *Engine) tryOpen(snapshot *domain.TokenSnapshot, sig *domain.Signal) *domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.consumeBudgetLocked() {
		e.reject(snapshot.Address, "daily_budget", nil)
		return nil
	}

	size := sig.RecommendedPositionSize
	if fractionCap := e.balanceUsd * e.cfg.MaxPositionFraction; size > fractionCap {
		size = fractionCap
	}
	if size > e.balanceUsd {
		size = e.balanceUsd
	}
	if size <= 0 || snapshot.PriceUsd <= 0 {
		e.refundBudgetLocked()
		e.reject(snapshot.Address, "no_funds", nil)
		return nil
	}
	quantity := size / snapshot.PriceUsd

	pos, err := e.ledger.Open(snapshot, sig, quantity, snapshot.PriceUsd)
	if err != nil {
		e.refundBudgetLocked()
		switch {
		case errors.Is(err, ledger.ErrDuplicatePosition):
			e.reject(snapshot.Address, "duplicate", err)
		case errors.Is(err, ledger.ErrCapacityExceeded):
			e.reject(snapshot.Address, "capacity", err)
		case errors.Is(err, ledger.ErrPositionTooLarge):
			e.reject(snapshot.Address, "too_large", err)
		default:
			e.reject(snapshot.Address, "other", err)
		}
		return nil
	}

	unsub, err := e.feed.Subscribe(snapshot.Address, e.handleTick)
	if err != nil {
		// Without ticks the position can never exit; roll it back.
		e.ledger.Close(snapshot.Address, pos.EntryPrice, domain.ExitReasonManual)
		e.refundBudgetLocked()
		e.reject(snapshot.Address, "feed", err)
		return nil
	}
	e.unsubs[snapshot.Address] = unsub

	e.balanceUsd -= pos.InvestedValue
	if e.metrics != nil {
		e.metrics.AccountBalanceUsd.Set(e.balanceUsd)
		e.metrics.DailyTradesUsed.Set(float64(e.budgetUsed))
	}

	e.log.Info().
		Str("token", snapshot.Address).
		Str("position_id", pos.ID).
		Float64("invested_usd", pos.InvestedValue).
		Float64("quantity", pos.Quantity).
		Float64("entry_price", pos.EntryPrice).
		Msg("position opened")

	return pos
}

// consumeBudgetLocked counts one trade against the rolling window,
// starting a new window when the previous one has expired.
func (e *Engine) consumeBudgetLocked() bool {
	now := e.nowMs()
	if e.budgetStartMs == 0 || now-e.budgetStartMs >= dayMs {
		e.budgetStartMs = now
		e.budgetUsed = 0
	}
	if e.budgetUsed >= e.cfg.MaxDailyTrades {
		return false
	}
	e.budgetUsed++
	return true
}

// refundBudgetLocked returns one trade to the window. A window holding
// no trades after the refund is released entirely, so only a
// successful open anchors the rolling 24h start.
func (e *Engine) refundBudgetLocked() {
	if e.budgetUsed > 0 {
		e.budgetUsed--
	}
	if e.budgetUsed == 0 {
		e.budgetStartMs = 0
	}
}

func (e *Engine) reject(token, cause string, err error) {
	if e.metrics != nil {
		e.metrics.PositionsRejected.WithLabelValues(cause).Inc()
	}
	e.log.Warn().Err(err).Str("token", token).Str("cause", cause).Msg("position open rejected")
}

// handleTick routes one feed tick into the ledger and closes the
// position when an exit condition is crossed.
func (e *Engine) handleTick(tk feed.Tick) {
	start := time.Now()

	trigger := e.ledger.ApplyTick(tk.TokenAddress, tk.Price, tk.TimestampMs)
	if e.metrics != nil {
		e.metrics.TickHandlingLatency.Observe(time.Since(start).Seconds())
	}
	if trigger == nil {
		return
	}

	e.closeAndRecord(context.Background(), trigger.TokenAddress, trigger.Price, trigger.Reason)
}

// sweepExpired force-closes positions held past the max hold time at
// their last seen price.
func (e *Engine) sweepExpired() {
	maxHoldMs := int64(e.cfg.MaxHoldTimeHours * 3600 * 1000)
	now := e.nowMs()

	for _, pos := range e.ledger.OpenPositions() {
		if now-pos.EntryTimeMs < maxHoldMs {
			continue
		}
		e.log.Info().
			Str("token", pos.TokenAddress).
			Float64("hold_hours", float64(now-pos.EntryTimeMs)/3600_000).
			Msg("max hold time reached, closing")
		e.closeAndRecord(context.Background(), pos.TokenAddress, pos.CurrentPrice, domain.ExitReasonMaxHoldTime)
	}
}

// closeAndRecord closes the position, credits the proceeds back to the
// account, and feeds the outcome through learning and persistence.
// Returns nil when the position was already closed by a racing exit.
func (e *Engine) closeAndRecord(ctx context.Context, tokenAddress string, exitPrice float64, reason string) *domain.TradeOutcome {
	pos, ok := e.ledger.Get(tokenAddress)
	if !ok {
		return nil
	}

	outcome, err := e.ledger.Close(tokenAddress, exitPrice, reason)
	if err != nil {
		if !errors.Is(err, ledger.ErrPositionNotFound) {
			e.log.Error().Err(err).Str("token", tokenAddress).Msg("close position")
		}
		return nil
	}

	proceeds := pos.Quantity * outcome.ExitPrice

	e.mu.Lock()
	e.balanceUsd += proceeds
	balance := e.balanceUsd
	if unsub, exists := e.unsubs[tokenAddress]; exists {
		unsub()
		delete(e.unsubs, tokenAddress)
	}
	e.mu.Unlock()

	e.log.Info().
		Str("token", tokenAddress).
		Str("reason", reason).
		Float64("pnl_usd", outcome.PnL).
		Float64("pnl_pct", outcome.PnLPercent).
		Float64("balance_usd", balance).
		Msg("position closed")

	if e.metrics != nil {
		e.metrics.AccountBalanceUsd.Set(balance)
		result := "loss"
		if outcome.IsWin {
			result = "win"
		}
		e.metrics.OutcomesRecorded.WithLabelValues(result).Inc()
	}

	if e.outcomeStore != nil {
		start := time.Now()
		err := e.outcomeStore.AppendOutcome(ctx, outcome)
		if e.metrics != nil {
			e.metrics.StoreQueryDuration.WithLabelValues("outcome", "append").Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				e.log.Debug().Str("outcome_id", outcome.OutcomeID).Msg("outcome already stored")
			} else {
				e.log.Warn().Err(err).Str("outcome_id", outcome.OutcomeID).Msg("append outcome failed")
				if e.metrics != nil {
					e.metrics.StorePersistErrors.WithLabelValues("outcome").Inc()
				}
			}
		}
	}

	state := e.model.RecordOutcome(ctx, outcome)
	if e.metrics != nil {
		e.metrics.ObserveModel(state)
	}
	if e.publisher != nil {
		e.publisher.PublishModelUpdated(state)
	}

	return outcome
}
