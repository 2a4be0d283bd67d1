// Package learning owns the adaptive weight vector and thresholds that
// sit between the raw signal scorer and the auto-trade loop. The model
// re-weights scorer output and updates itself from realized trade
// outcomes.
package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/scoring"
	"solana-trade-engine/internal/storage"
)

const (
	// winLiquidityWindow bounds the history used for threshold smoothing.
	winLiquidityWindow = 50
	// minWinsForSmoothing is the minimum winning-trade count before the
	// liquidity threshold starts drifting.
	minWinsForSmoothing = 5
	// thresholdRetention is the exponential smoothing retention factor:
	// threshold' = retention*threshold + (1-retention)*mean.
	thresholdRetention = 0.95
)

// Options configures a Model.
type Options struct {
	Config domain.TradingConfig
	Store  storage.ModelStore
	Logger zerolog.Logger

	// Initial restores previously persisted state. Nil starts fresh.
	Initial *domain.ModelState

	// NowMs overrides the clock, used by tests.
	NowMs func() int64
}

// Model is the learning model. All outcome updates are serialized by a
// single mutex: renormalization is a read-modify-write over the whole
// weight vector and must not interleave.
type Model struct {
	cfg   domain.TradingConfig
	store storage.ModelStore
	log   zerolog.Logger
	nowMs func() int64

	mu           sync.Mutex
	weights      domain.WeightVector
	thresholds   domain.AdaptiveThresholds
	counters     domain.ModelCounters
	winLiquidity []float64 // entry liquidity of recent winning trades
}

// New creates a Model, restoring Initial state when present.
func New(opts Options) *Model {
	m := &Model{
		cfg:   opts.Config,
		store: opts.Store,
		log:   opts.Logger,
		nowMs: opts.NowMs,
		thresholds: domain.AdaptiveThresholds{
			MinLiquidityUsd: opts.Config.SeedMinLiquidityUsd,
			MinHolders:      opts.Config.SeedMinHolders,
			MinVolume24hUsd: opts.Config.SeedMinVolume24hUsd,
		},
		weights: domain.NewWeightVector(),
	}
	if m.nowMs == nil {
		m.nowMs = func() int64 { return time.Now().UnixMilli() }
	}

	if opts.Initial != nil {
		if opts.Initial.Weights != nil {
			m.weights = opts.Initial.Weights.Clone()
		}
		m.thresholds = opts.Initial.Thresholds
		m.counters = opts.Initial.Counters
	}

	return m
}

// WeightedSignal scores a snapshot and applies the learned weights:
// confidence is multiplied by the weight of every factor present in the
// base signal's reasons, then clipped to [0,100]. When the snapshot's
// liquidity is below the adaptive minimum the classification drops one
// tier and a reason citing the learned threshold is appended; the
// second return reports whether that downgrade fired.
func (m *Model) WeightedSignal(token *domain.TokenSnapshot) (*domain.Signal, bool) {
	sig := scoring.GenerateSignal(token, m.cfg)

	m.mu.Lock()
	defer m.mu.Unlock()

	conf := sig.Confidence
	for _, f := range sig.Factors() {
		if w, ok := m.weights[f]; ok {
			conf *= w
		}
	}
	if conf > 100 {
		conf = 100
	}
	if conf < 0 {
		conf = 0
	}
	sig.Confidence = conf

	downgraded := token.LiquidityUsd < m.thresholds.MinLiquidityUsd
	if downgraded {
		sig.Classification = sig.Classification.Downgrade()
		sig.Reasons = append(sig.Reasons, domain.Reason{
			Factor: domain.FactorLiquidity,
			Text: fmt.Sprintf("Liquidity $%.0f below learned minimum $%.0f",
				token.LiquidityUsd, m.thresholds.MinLiquidityUsd),
		})
	}

	return sig, downgraded
}

// RecordOutcome consumes one trade outcome: counters are updated with
// incremental means, weights of the entry signal's factors move by the
// learning rate, weights renormalize whenever any entry exceeds the
// bound, and the liquidity threshold drifts toward recent winners.
// The new state is persisted; a persistence failure is logged and the
// in-memory state stays authoritative. Returns a copy of the new state.
func (m *Model) RecordOutcome(ctx context.Context, outcome *domain.TradeOutcome) *domain.ModelState {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateCounters(outcome)
	m.adjustWeights(outcome)
	if outcome.IsWin {
		m.recordWinLiquidity(outcome.EntryLiquidity)
		m.smoothLiquidityThreshold()
	}

	state := m.stateLocked()
	if err := m.store.SaveModel(ctx, state); err != nil {
		// Next successful save catches up; in-memory state is authoritative.
		m.log.Warn().Err(err).Str("outcome_id", outcome.OutcomeID).
			Msg("model state save failed, keeping in-memory state")
	}

	return state
}

// State returns a copy of the current model state.
func (m *Model) State() *domain.ModelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Stats returns the running trade counters.
func (m *Model) Stats() domain.ModelCounters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters
}

// Thresholds returns the current adaptive thresholds.
func (m *Model) Thresholds() domain.AdaptiveThresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

func (m *Model) updateCounters(outcome *domain.TradeOutcome) {
	m.counters.TotalTrades++
	if outcome.IsWin {
		m.counters.WinningTrades++
		n := float64(m.counters.WinningTrades)
		m.counters.AverageWinPct = (m.counters.AverageWinPct*(n-1) + outcome.PnLPercent) / n
	} else {
		m.counters.LosingTrades++
		n := float64(m.counters.LosingTrades)
		m.counters.AverageLossPct = (m.counters.AverageLossPct*(n-1) + outcome.PnLPercent) / n
	}
	m.counters.WinRate = float64(m.counters.WinningTrades) / float64(m.counters.TotalTrades)
}

func (m *Model) adjustWeights(outcome *domain.TradeOutcome) {
	if outcome.EntrySignal == nil {
		return
	}

	mult := 1 + m.cfg.LearningRate
	if !outcome.IsWin {
		mult = 1 - m.cfg.LearningRate
	}

	for _, f := range outcome.EntrySignal.Factors() {
		// Unknown factor identifiers are ignored, never fatal.
		if _, ok := m.weights[f]; !ok {
			continue
		}
		m.weights[f] *= mult
	}

	// Renormalize by max/2 when any weight exceeds the bound; relative
	// ordering is preserved while growth stays bounded.
	if max := m.weights.Max(); max > domain.MaxWeight {
		div := max / 2
		for f := range m.weights {
			m.weights[f] /= div
		}
	}
}

func (m *Model) recordWinLiquidity(liquidityUsd float64) {
	m.winLiquidity = append(m.winLiquidity, liquidityUsd)
	if len(m.winLiquidity) > winLiquidityWindow {
		m.winLiquidity = m.winLiquidity[len(m.winLiquidity)-winLiquidityWindow:]
	}
}

func (m *Model) smoothLiquidityThreshold() {
	if len(m.winLiquidity) < minWinsForSmoothing {
		return
	}
	var sum float64
	for _, l := range m.winLiquidity {
		sum += l
	}
	mean := sum / float64(len(m.winLiquidity))
	m.thresholds.MinLiquidityUsd = thresholdRetention*m.thresholds.MinLiquidityUsd +
		(1-thresholdRetention)*mean
}

func (m *Model) stateLocked() *domain.ModelState {
	return &domain.ModelState{
		Weights:    m.weights.Clone(),
		Thresholds: m.thresholds,
		Counters:   m.counters,
		UpdatedAt:  m.nowMs(),
	}
}
