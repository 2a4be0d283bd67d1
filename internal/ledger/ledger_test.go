package ledger

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"solana-trade-engine/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func testConfig() Config {
	return Config{
		MaxPositions:        5,
		MaxPositionSizeUsd:  500,
		StopLossPct:         20,
		TakeProfitPct:       50,
		TrailingStopEnabled: true,
		TrailingStopPct:     15,
	}
}

func testLedger(cfg Config, subs ...Subscriber) (*Ledger, *int64) {
	now := int64(1_700_000_000_000)
	l := New(Options{
		Config:      cfg,
		Logger:      zerolog.Nop(),
		Subscribers: subs,
		NowMs:       func() int64 { return now },
	})
	return l, &now
}

func snapshot(addr string) *domain.TokenSnapshot {
	return &domain.TokenSnapshot{
		Address:      addr,
		Symbol:       "TST",
		LiquidityUsd: 25_000,
	}
}

func TestOpen_InitializesPosition(t *testing.T) {
	l, _ := testLedger(testConfig())

	p, err := l.Open(snapshot("tokA"), nil, 100, 1.0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p.ID == "" {
		t.Error("expected non-empty position id")
	}
	if p.State != domain.PositionStateOpen {
		t.Errorf("expected OPEN state, got %s", p.State)
	}
	if p.InvestedValue != 100 {
		t.Errorf("expected invested 100, got %v", p.InvestedValue)
	}
	if !almostEqual(p.StopLoss, 0.80) {
		t.Errorf("expected initial stop 0.80, got %v", p.StopLoss)
	}
	if p.TakeProfit != 1.50 {
		t.Errorf("expected take profit 1.50, got %v", p.TakeProfit)
	}
	if p.PeakPrice != 1.0 {
		t.Errorf("expected peak 1.0, got %v", p.PeakPrice)
	}
	if p.EntryLiquidity != 25_000 {
		t.Errorf("expected entry liquidity carried over, got %v", p.EntryLiquidity)
	}
	if l.OpenCount() != 1 {
		t.Errorf("expected 1 open position, got %d", l.OpenCount())
	}
}

func TestOpen_RejectsDuplicate(t *testing.T) {
	l, _ := testLedger(testConfig())

	if _, err := l.Open(snapshot("tokA"), nil, 100, 1.0); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	_, err := l.Open(snapshot("tokA"), nil, 50, 2.0)
	if !errors.Is(err, ErrDuplicatePosition) {
		t.Fatalf("expected ErrDuplicatePosition, got %v", err)
	}
	if l.OpenCount() != 1 {
		t.Errorf("failed open must not mutate state, got %d positions", l.OpenCount())
	}
}

func TestOpen_RejectsAtCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositions = 2
	l, _ := testLedger(cfg)

	for i := 0; i < 2; i++ {
		addr := fmt.Sprintf("tok%d", i)
		if _, err := l.Open(snapshot(addr), nil, 10, 1.0); err != nil {
			t.Fatalf("Open %s: %v", addr, err)
		}
	}
	_, err := l.Open(snapshot("tok2"), nil, 10, 1.0)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestOpen_RejectsOversizedPosition(t *testing.T) {
	l, _ := testLedger(testConfig())

	_, err := l.Open(snapshot("tokA"), nil, 600, 1.0) // 600 > 500 cap
	if !errors.Is(err, ErrPositionTooLarge) {
		t.Fatalf("expected ErrPositionTooLarge, got %v", err)
	}
}

// Zero or negative price and quantity would make every later PnL
// computation divide by zero.
func TestOpen_RejectsNonPositiveOrder(t *testing.T) {
	l, _ := testLedger(testConfig())

	cases := []struct {
		name     string
		quantity float64
		price    float64
	}{
		{"zero price", 100, 0},
		{"zero quantity", 0, 1.0},
		{"negative price", 100, -1.0},
		{"negative quantity", -100, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Open(snapshot("tokA"), nil, tc.quantity, tc.price)
			if !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}
	if l.OpenCount() != 0 {
		t.Errorf("expected no tracked positions, got %d", l.OpenCount())
	}
}

// A rising price ratchets the trailing stop above entry, so a later
// pullback exits via stop-loss with a locked-in profit.
func TestTrailingStop_LocksInProfit(t *testing.T) {
	cfg := testConfig()
	cfg.TakeProfitPct = 100 // keep take-profit out of the way
	l, now := testLedger(cfg)

	if _, err := l.Open(snapshot("tokA"), nil, 100, 1.0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	trigger := l.ApplyTick("tokA", 1.50, *now+1000)
	if trigger != nil {
		t.Fatalf("unexpected trigger at 1.50: %+v", trigger)
	}
	p, _ := l.Get("tokA")
	if p.PeakPrice != 1.50 {
		t.Errorf("expected peak 1.50, got %v", p.PeakPrice)
	}
	if !almostEqual(p.StopLoss, 1.275) {
		t.Errorf("expected trailed stop 1.275, got %v", p.StopLoss)
	}

	trigger = l.ApplyTick("tokA", 1.20, *now+2000)
	if trigger == nil {
		t.Fatal("expected stop-loss trigger at 1.20")
	}
	if trigger.Reason != domain.ExitReasonStopLoss {
		t.Errorf("expected STOP_LOSS, got %s", trigger.Reason)
	}

	outcome, err := l.Close("tokA", trigger.Price, trigger.Reason)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if outcome.PnL != 20 {
		t.Errorf("expected pnl 20, got %v", outcome.PnL)
	}
	if !outcome.IsWin {
		t.Error("a stop-loss exit above entry is still a win")
	}
	if outcome.ExitReason != domain.ExitReasonStopLoss {
		t.Errorf("expected STOP_LOSS outcome, got %s", outcome.ExitReason)
	}
}

func TestApplyTick_NoOpWithoutPosition(t *testing.T) {
	l, _ := testLedger(testConfig())

	if trigger := l.ApplyTick("unknown", 1.0, 0); trigger != nil {
		t.Fatalf("expected no-op, got %+v", trigger)
	}
}

// When a tick satisfies both exit conditions the stop-loss wins.
func TestApplyTick_StopLossBeforeTakeProfit(t *testing.T) {
	l, now := testLedger(testConfig())

	if _, err := l.Open(snapshot("tokA"), nil, 100, 1.0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Peak at 10.0 trails the stop to 8.50, well above the 1.50 take
	// profit. 5.0 is then below the stop and above the take profit.
	if trigger := l.ApplyTick("tokA", 10.0, *now+1000); trigger == nil || trigger.Reason != domain.ExitReasonTakeProfit {
		t.Fatalf("expected take-profit trigger at 10.0, got %+v", trigger)
	}
	trigger := l.ApplyTick("tokA", 5.0, *now+2000)
	if trigger == nil {
		t.Fatal("expected trigger at 5.0")
	}
	if trigger.Reason != domain.ExitReasonStopLoss {
		t.Errorf("stop-loss must be checked before take-profit, got %s", trigger.Reason)
	}
}

func TestApplyTick_TakeProfit(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingStopEnabled = false
	l, now := testLedger(cfg)

	if _, err := l.Open(snapshot("tokA"), nil, 100, 1.0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	trigger := l.ApplyTick("tokA", 1.60, *now+1000)
	if trigger == nil || trigger.Reason != domain.ExitReasonTakeProfit {
		t.Fatalf("expected TAKE_PROFIT, got %+v", trigger)
	}
}

func TestStopLoss_NeverDecreases(t *testing.T) {
	l, now := testLedger(testConfig())

	if _, err := l.Open(snapshot("tokA"), nil, 100, 1.0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	price := 1.0
	prevStop := 0.0
	for i := 0; i < 500; i++ {
		price *= 1 + (rng.Float64()-0.5)*0.1
		l.ApplyTick("tokA", price, *now+int64(i))
		p, ok := l.Get("tokA")
		if !ok {
			t.Fatal("position vanished during ticks")
		}
		if p.StopLoss < prevStop {
			t.Fatalf("stop decreased at tick %d: %v -> %v", i, prevStop, p.StopLoss)
		}
		prevStop = p.StopLoss
	}
}

func TestClose_ProducesOutcomeOnce(t *testing.T) {
	l, now := testLedger(testConfig())

	if _, err := l.Open(snapshot("tokA"), nil, 100, 1.0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	*now += 30 * 60_000 // 30 minutes later

	outcome, err := l.Close("tokA", 0.90, domain.ExitReasonManual)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if outcome.PnL != -10 {
		t.Errorf("expected pnl -10, got %v", outcome.PnL)
	}
	if outcome.PnLPercent != -10 {
		t.Errorf("expected pnl pct -10, got %v", outcome.PnLPercent)
	}
	if outcome.HoldMinutes != 30 {
		t.Errorf("expected 30 hold minutes, got %v", outcome.HoldMinutes)
	}
	if outcome.IsWin {
		t.Error("losing trade flagged as win")
	}
	if outcome.OutcomeID == "" || outcome.PositionID == "" {
		t.Error("expected deterministic ids to be set")
	}
	if l.OpenCount() != 0 {
		t.Errorf("expected no open positions after close, got %d", l.OpenCount())
	}

	_, err = l.Close("tokA", 0.90, domain.ExitReasonManual)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("second close must fail ErrPositionNotFound, got %v", err)
	}
}

func TestClose_BreakEvenIsNotWin(t *testing.T) {
	l, _ := testLedger(testConfig())

	if _, err := l.Open(snapshot("tokA"), nil, 100, 1.0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	outcome, err := l.Close("tokA", 1.0, domain.ExitReasonManual)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if outcome.IsWin {
		t.Error("zero pnl must not count as a win")
	}
}

func TestHistory_EvictsOldest(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHistory = 3
	l, _ := testLedger(cfg)

	for i := 0; i < 5; i++ {
		addr := fmt.Sprintf("tok%d", i)
		if _, err := l.Open(snapshot(addr), nil, 10, 1.0); err != nil {
			t.Fatalf("Open %s: %v", addr, err)
		}
		if _, err := l.Close(addr, 1.1, domain.ExitReasonManual); err != nil {
			t.Fatalf("Close %s: %v", addr, err)
		}
	}

	h := l.History(0)
	if len(h) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(h))
	}
	want := []string{"tok2", "tok3", "tok4"}
	for i, o := range h {
		if o.TokenAddress != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, o.TokenAddress, want[i])
		}
	}

	if got := l.History(2); len(got) != 2 || got[1].TokenAddress != "tok4" {
		t.Errorf("History(2) must keep the most recent outcomes, got %+v", got)
	}
}

func TestOpenPositions_OrderedByEntryTime(t *testing.T) {
	l, now := testLedger(testConfig())

	for i, addr := range []string{"tokC", "tokA", "tokB"} {
		*now += int64(i+1) * 1000
		if _, err := l.Open(snapshot(addr), nil, 10, 1.0); err != nil {
			t.Fatalf("Open %s: %v", addr, err)
		}
	}

	open := l.OpenPositions()
	if len(open) != 3 {
		t.Fatalf("expected 3 open positions, got %d", len(open))
	}
	want := []string{"tokC", "tokA", "tokB"}
	for i, p := range open {
		if p.TokenAddress != want[i] {
			t.Errorf("open[%d] = %s, want %s", i, p.TokenAddress, want[i])
		}
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	l, now := testLedger(testConfig())

	if _, err := l.Open(snapshot("tokA"), nil, 100, 1.0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	p, _ := l.Get("tokA")
	p.StopLoss = 999

	l.ApplyTick("tokA", 1.01, *now+1)
	fresh, _ := l.Get("tokA")
	if fresh.StopLoss == 999 {
		t.Error("mutating a returned position must not affect ledger state")
	}
}

type recordingSubscriber struct {
	events []string
}

func (r *recordingSubscriber) OnOpen(p *domain.Position) {
	r.events = append(r.events, "open:"+p.TokenAddress)
}

func (r *recordingSubscriber) OnTick(p *domain.Position) {
	r.events = append(r.events, "tick:"+p.TokenAddress)
}

func (r *recordingSubscriber) OnExitTriggered(p *domain.Position, reason string) {
	r.events = append(r.events, "exit:"+reason)
}

func (r *recordingSubscriber) OnClose(o *domain.TradeOutcome) {
	r.events = append(r.events, "close:"+o.ExitReason)
}

type panickingSubscriber struct{}

func (panickingSubscriber) OnOpen(*domain.Position)                  { panic("boom") }
func (panickingSubscriber) OnTick(*domain.Position)                  { panic("boom") }
func (panickingSubscriber) OnExitTriggered(*domain.Position, string) { panic("boom") }
func (panickingSubscriber) OnClose(*domain.TradeOutcome)             { panic("boom") }

func TestSubscribers_OrderedCallbacks(t *testing.T) {
	rec := &recordingSubscriber{}
	// The panicking subscriber runs first; the recorder must still see
	// every event and state transitions must still apply.
	l, now := testLedger(testConfig(), panickingSubscriber{}, rec)

	if _, err := l.Open(snapshot("tokA"), nil, 100, 1.0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	trigger := l.ApplyTick("tokA", 0.70, *now+1000)
	if trigger == nil {
		t.Fatal("expected stop-loss trigger")
	}
	if _, err := l.Close("tokA", trigger.Price, trigger.Reason); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []string{"open:tokA", "tick:tokA", "exit:STOP_LOSS", "close:STOP_LOSS"}
	if len(rec.events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), rec.events)
	}
	for i, e := range rec.events {
		if e != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, e, want[i])
		}
	}
}
