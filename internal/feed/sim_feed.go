package feed

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// SimConfig configures the simulated feed.
type SimConfig struct {
	// Seed makes the walk reproducible. Tokens derive independent
	// generators from it, so adding a subscription never perturbs the
	// price paths of existing ones.
	Seed int64
	// TickInterval is the wall-clock delay between generated ticks.
	TickInterval time.Duration
	// InitialPrice is the starting price for every token.
	InitialPrice float64
	// VolatilityPct bounds the per-tick random move, in percent.
	VolatilityPct float64
	// DriftPct is the deterministic per-tick move, in percent.
	DriftPct float64
}

// DefaultSimConfig returns defaults for local simulation runs.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Seed:          1,
		TickInterval:  time.Second,
		InitialPrice:  1.0,
		VolatilityPct: 5,
	}
}

type simToken struct {
	price   float64
	rng     *rand.Rand
	handler Handler
}

// SimFeed generates a seeded random price walk per subscribed token.
// Used by the simulation binary and by tests in place of a live
// WebSocket feed.
type SimFeed struct {
	cfg    SimConfig
	nowMs  func() int64
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	tokens map[string]*simToken
}

var _ PriceFeed = (*SimFeed)(nil)

// NewSimFeed creates a simulated feed. Call Start to drive it from the
// wall clock, or Advance to step it manually.
func NewSimFeed(cfg SimConfig, nowMs func() int64) *SimFeed {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.InitialPrice <= 0 {
		cfg.InitialPrice = 1.0
	}
	if nowMs == nil {
		nowMs = func() int64 { return time.Now().UnixMilli() }
	}
	return &SimFeed{
		cfg:    cfg,
		nowMs:  nowMs,
		done:   make(chan struct{}),
		tokens: make(map[string]*simToken),
	}
}

// Subscribe registers a handler and initializes the token's walk.
func (f *SimFeed) Subscribe(tokenAddress string, h Handler) (func(), error) {
	if f.closed.Load() {
		return nil, fmt.Errorf("feed closed")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.tokens[tokenAddress]; exists {
		return nil, fmt.Errorf("already subscribed to %s", tokenAddress)
	}
	f.tokens[tokenAddress] = &simToken{
		price:   f.cfg.InitialPrice,
		rng:     rand.New(rand.NewSource(f.tokenSeed(tokenAddress))),
		handler: h,
	}

	unsubscribe := func() {
		f.mu.Lock()
		delete(f.tokens, tokenAddress)
		f.mu.Unlock()
	}
	return unsubscribe, nil
}

// Start drives the walk from the wall clock until Close.
func (f *SimFeed) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-f.done:
				return
			case <-ticker.C:
				f.Advance()
			}
		}
	}()
}

// Advance emits one tick for every subscribed token. Handlers run
// synchronously on the caller's goroutine.
func (f *SimFeed) Advance() {
	now := f.nowMs()

	f.mu.Lock()
	type emit struct {
		h Handler
		t Tick
	}
	emits := make([]emit, 0, len(f.tokens))
	for addr, tok := range f.tokens {
		move := f.cfg.DriftPct + (tok.rng.Float64()*2-1)*f.cfg.VolatilityPct
		tok.price *= 1 + move/100
		emits = append(emits, emit{
			h: tok.handler,
			t: Tick{TokenAddress: addr, Price: tok.price, TimestampMs: now},
		})
	}
	f.mu.Unlock()

	for _, e := range emits {
		e.h(e.t)
	}
}

// Close stops the feed.
func (f *SimFeed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	close(f.done)
	f.wg.Wait()
	return nil
}

// tokenSeed derives a stable per-token seed from the base seed.
func (f *SimFeed) tokenSeed(tokenAddress string) int64 {
	h := fnv.New64a()
	h.Write([]byte(tokenAddress))
	return f.cfg.Seed ^ int64(h.Sum64())
}
