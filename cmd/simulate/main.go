// Package main runs a self-contained paper-trading simulation:
// in-memory stores, a seeded random-walk price feed, and a fixed set
// of token fixtures evaluated as their prices evolve.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/feed"
	"solana-trade-engine/internal/learning"
	"solana-trade-engine/internal/orchestrator"
	"solana-trade-engine/internal/storage/memory"
)

// msPerTick is the simulated clock step. One tick is one minute, so
// max-hold exits are reachable within a few thousand ticks.
const msPerTick = int64(60_000)

// evaluateEvery re-submits the fixture snapshots to the engine every
// N ticks, modeling periodic catalog refreshes.
const evaluateEvery = 30

func main() {
	ticks := flag.Int("ticks", 2000, "Number of simulated ticks to run")
	seed := flag.Int64("seed", 42, "Random walk seed")
	volatility := flag.Float64("volatility", 5, "Per-tick volatility percent")
	drift := flag.Float64("drift", 0, "Per-tick drift percent")
	outputJSON := flag.Bool("json", false, "Print final summary as JSON")
	verbose := flag.Bool("verbose", false, "Debug logging")

	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	ctx := context.Background()

	// Simulated clock, advanced one step per tick.
	clock := time.Now().UnixMilli()
	nowMs := func() int64 { return clock }

	cfg := domain.TradingConfig{
		GreenThreshold:      75,
		YellowThreshold:     50,
		StopLossPct:         20,
		TakeProfitPct:       50,
		TrailingStopEnabled: true,
		TrailingStopPct:     15,
		MaxPositions:        5,
		MaxPositionSizeUsd:  500,
		MaxPositionFraction: 0.1,
		MaxDailyTrades:      20,
		MaxHoldTimeHours:    24,
		LearningRate:        0.1,
		SeedMinLiquidityUsd: 10000,
		SeedMinHolders:      100,
		SeedMinVolume24hUsd: 10000,
		InitialBalanceUsd:   10000,
	}

	outcomeStore := memory.NewOutcomeStore()
	model := learning.New(learning.Options{
		Config: cfg,
		Store:  memory.NewModelStore(),
		Logger: log.With().Str("component", "learning").Logger(),
		NowMs:  nowMs,
	})

	simFeed := feed.NewSimFeed(feed.SimConfig{
		Seed:          *seed,
		InitialPrice:  1.0,
		VolatilityPct: *volatility,
		DriftPct:      *drift,
	}, nowMs)
	defer simFeed.Close()

	engine, err := orchestrator.New(orchestrator.Options{
		Config:        cfg,
		Model:         model,
		Feed:          simFeed,
		OutcomeStore:  outcomeStore,
		Logger:        log.With().Str("component", "orchestrator").Logger(),
		NowMs:         nowMs,
		SweepInterval: 5 * time.Millisecond,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create engine")
	}
	engine.Start()
	defer engine.Stop()

	fixtures := tokenFixtures()
	log.Info().
		Int("tokens", len(fixtures)).
		Int("ticks", *ticks).
		Int64("seed", *seed).
		Msg("simulation starting")

	for i := 0; i < *ticks; i++ {
		if i%evaluateEvery == 0 {
			for _, fx := range fixtures {
				snapshot := fx
				snapshot.TimestampMs = clock
				sig, pos, err := engine.EvaluateToken(ctx, &snapshot)
				if err != nil {
					log.Warn().Err(err).Str("token", snapshot.Address).Msg("evaluate failed")
					continue
				}
				if pos != nil {
					log.Info().
						Str("token", snapshot.Symbol).
						Float64("confidence", sig.Confidence).
						Float64("entry_price", pos.EntryPrice).
						Msg("position opened")
				}
			}
		}

		simFeed.Advance()
		clock += msPerTick

		// Give the sweeper a chance to observe the advanced clock.
		time.Sleep(time.Millisecond)
	}

	printSummary(engine, *outputJSON)
}

// tokenFixtures returns the simulated token universe: a mix of strong
// and weak snapshots so both entry and rejection paths run.
func tokenFixtures() []domain.TokenSnapshot {
	revoked := (*string)(nil)
	mintAuth := "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

	return []domain.TokenSnapshot{
		{
			Address:         "So11111111111111111111111111111111111111112",
			Symbol:          "ALPHA",
			LiquidityUsd:    45000,
			HolderCount:     800,
			LPBurned:        true,
			MintAuthority:   revoked,
			FreezeAuthority: revoked,
			PriceUsd:        1.0,
			PriceChange24h:  4.2,
			Volume24hUsd:    120000,
			MarketCapUsd:    600000,
		},
		{
			Address:         "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			Symbol:          "BETA",
			LiquidityUsd:    30000,
			HolderCount:     500,
			LPBurned:        true,
			MintAuthority:   revoked,
			FreezeAuthority: revoked,
			PriceUsd:        1.0,
			PriceChange24h:  1.8,
			Volume24hUsd:    60000,
			MarketCapUsd:    350000,
		},
		{
			Address:         "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
			Symbol:          "GAMMA",
			LiquidityUsd:    18000,
			HolderCount:     220,
			LPBurned:        true,
			MintAuthority:   revoked,
			FreezeAuthority: revoked,
			PriceUsd:        1.0,
			PriceChange24h:  -2.5,
			Volume24hUsd:    25000,
			MarketCapUsd:    150000,
		},
		{
			Address:         "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So",
			Symbol:          "RISKY",
			LiquidityUsd:    4000,
			HolderCount:     40,
			LPBurned:        false,
			MintAuthority:   &mintAuth,
			FreezeAuthority: revoked,
			PriceUsd:        1.0,
			PriceChange24h:  38,
			Volume24hUsd:    3000,
			MarketCapUsd:    25000,
		},
	}
}

// summary is the end-of-run report.
type summary struct {
	BalanceUsd    float64             `json:"balance_usd"`
	OpenPositions int                 `json:"open_positions"`
	TotalTrades   int64               `json:"total_trades"`
	WinningTrades int64               `json:"winning_trades"`
	LosingTrades  int64               `json:"losing_trades"`
	WinRate       float64             `json:"win_rate"`
	Weights       domain.WeightVector `json:"weights"`
	LastOutcomes  []outcomeLine       `json:"last_outcomes"`
}

type outcomeLine struct {
	Token      string  `json:"token"`
	ExitReason string  `json:"exit_reason"`
	PnL        float64 `json:"pnl"`
	PnLPercent float64 `json:"pnl_percent"`
}

func printSummary(engine *orchestrator.Engine, asJSON bool) {
	state := engine.LearningStats()

	s := summary{
		BalanceUsd:    engine.Balance(),
		OpenPositions: len(engine.OpenPositions()),
		TotalTrades:   state.Counters.TotalTrades,
		WinningTrades: state.Counters.WinningTrades,
		LosingTrades:  state.Counters.LosingTrades,
		WinRate:       state.Counters.WinRate,
		Weights:       state.Weights,
	}
	for _, o := range engine.TradeHistory(10) {
		s.LastOutcomes = append(s.LastOutcomes, outcomeLine{
			Token:      o.TokenAddress,
			ExitReason: o.ExitReason,
			PnL:        o.PnL,
			PnLPercent: o.PnLPercent,
		})
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(s)
		return
	}

	fmt.Printf("\n=== Simulation Summary ===\n")
	fmt.Printf("Final balance:   $%.2f\n", s.BalanceUsd)
	fmt.Printf("Open positions:  %d\n", s.OpenPositions)
	fmt.Printf("Total trades:    %d (wins %d / losses %d, win rate %.1f%%)\n",
		s.TotalTrades, s.WinningTrades, s.LosingTrades, s.WinRate*100)
	fmt.Printf("Learned weights:\n")
	for _, f := range domain.KnownFactors {
		fmt.Printf("  %-18s %.3f\n", f, s.Weights[f])
	}
	if len(s.LastOutcomes) > 0 {
		fmt.Printf("Recent outcomes:\n")
		for _, o := range s.LastOutcomes {
			fmt.Printf("  %-44s %-14s pnl $%+.2f (%+.1f%%)\n", o.Token, o.ExitReason, o.PnL, o.PnLPercent)
		}
	}
}
