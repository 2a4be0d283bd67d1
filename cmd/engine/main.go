// Package main runs the trading engine as a long-lived service:
// token snapshots arrive over HTTP, ticks over the configured feed,
// state persists to the configured stores.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/events"
	"solana-trade-engine/internal/feed"
	"solana-trade-engine/internal/learning"
	"solana-trade-engine/internal/ledger"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/orchestrator"
	"solana-trade-engine/internal/storage"
	chstore "solana-trade-engine/internal/storage/clickhouse"
	"solana-trade-engine/internal/storage/memory"
	"solana-trade-engine/internal/storage/migrations"
	pgstore "solana-trade-engine/internal/storage/postgres"
	redisstore "solana-trade-engine/internal/storage/redis"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (defaults applied when empty)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := setupLogger(cfg)
	log.Info().Str("environment", cfg.Environment).Msg("starting trade engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	stores, cleanup, err := createStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create stores")
	}
	defer cleanup()

	// Learning model, warm-started from the last persisted state.
	initial, err := stores.model.LoadModel(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Fatal().Err(err).Msg("load model state")
	}
	if initial != nil {
		log.Info().Int64("total_trades", initial.Counters.TotalTrades).Msg("restored model state")
	}

	model := learning.New(learning.Options{
		Config:  cfg.Trading,
		Store:   stores.model,
		Logger:  log.With().Str("component", "learning").Logger(),
		Initial: initial,
	})

	// Price feed
	priceFeed, err := createFeed(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create price feed")
	}
	defer priceFeed.Close()

	// Metrics
	metrics := observability.NewMetrics("trade_engine")

	var subscribers []ledger.Subscriber
	subscribers = append(subscribers, observability.NewLedgerObserver(metrics))

	// Kafka event publisher
	var publisher *events.KafkaPublisher
	if cfg.Kafka.Enabled {
		publisher, err = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			PublishTicks:   cfg.Kafka.PublishTicks,
			PublishTimeout: cfg.Kafka.PublishTimeout,
		}, log.With().Str("component", "events").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("create kafka publisher")
		}
		defer publisher.Close()
		subscribers = append(subscribers, publisher)
	}

	engineOpts := orchestrator.Options{
		Config:            cfg.Trading,
		Model:             model,
		Feed:              priceFeed,
		OutcomeStore:      stores.outcome,
		Metrics:           metrics,
		LedgerSubscribers: subscribers,
		Logger:            log.With().Str("component", "orchestrator").Logger(),
	}
	if publisher != nil {
		engineOpts.Publisher = publisher
	}

	engine, err := orchestrator.New(engineOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("create engine")
	}
	engine.Start()
	defer engine.Stop()

	// Scheduled jobs
	jobs := cron.New()
	_, err = jobs.AddFunc(cfg.Jobs.ModelSnapshot, func() {
		snapshotModel(ctx, stores.model, model, log)
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Jobs.ModelSnapshot).Msg("schedule model snapshot")
	}
	_, err = jobs.AddFunc(cfg.Jobs.DailySummary, func() {
		logDailySummary(engine, log)
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Jobs.DailySummary).Msg("schedule daily summary")
	}
	jobs.Start()
	defer jobs.Stop()

	// HTTP API + metrics
	srv := newHTTPServer(cfg, engine, log)
	go func() {
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
		}
	}()

	// Shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}

	// Final model snapshot before exit.
	snapshotModel(shutdownCtx, stores.model, model, log)
	cancel()
	log.Info().Msg("shutdown complete")
}

// loadConfig reads the file when given, otherwise returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// setupLogger builds the root logger from the logging section.
func setupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Logging.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

// engineStores holds the persistence backends selected by configuration.
type engineStores struct {
	model   storage.ModelStore
	outcome storage.OutcomeStore
}

// createStores wires the configured backends, falling back to memory
// stores when nothing durable is enabled. Postgres is the primary for
// both stores; Redis mirrors model saves and ClickHouse mirrors
// outcome appends.
func createStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*engineStores, func(), error) {
	stores := &engineStores{
		model:   memory.NewModelStore(),
		outcome: memory.NewOutcomeStore(),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var modelStores []storage.ModelStore
	var outcomeStores []storage.OutcomeStore

	if cfg.Postgres.Enabled {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		log.Info().Msg("postgres store ready")

		modelStores = append(modelStores, pgstore.NewModelStore(pool))
		outcomeStores = append(outcomeStores, pgstore.NewOutcomeStore(pool))
	}

	if cfg.Redis.Enabled {
		store, err := redisstore.NewModelStore(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, func() { store.Close() })
		log.Info().Msg("redis model store ready")

		modelStores = append(modelStores, store)
	}

	if cfg.ClickHouse.Enabled {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		log.Info().Msg("clickhouse outcome store ready")

		outcomeStores = append(outcomeStores, chstore.NewOutcomeStore(conn))
	}

	if len(modelStores) > 0 {
		stores.model = newTeeModelStore(modelStores, log)
	}
	if len(outcomeStores) > 0 {
		stores.outcome = newTeeOutcomeStore(outcomeStores, log)
	}

	return stores, cleanup, nil
}

// createFeed builds the configured tick source.
func createFeed(ctx context.Context, cfg *config.Config, log zerolog.Logger) (feed.PriceFeed, error) {
	switch cfg.Feed.Mode {
	case "ws":
		wsCfg := feed.DefaultWSConfig()
		wsCfg.ReconnectDelay = cfg.Feed.ReconnectDelay
		wsCfg.MaxReconnectDelay = cfg.Feed.MaxReconnectDelay
		wsCfg.PingInterval = cfg.Feed.PingInterval
		wsCfg.ReadTimeout = cfg.Feed.ReadTimeout
		wsCfg.WriteTimeout = cfg.Feed.WriteTimeout
		return feed.NewWSFeed(ctx, cfg.Feed.Endpoint, &wsCfg, log.With().Str("component", "feed").Logger())
	case "sim":
		sim := feed.NewSimFeed(feed.SimConfig{
			Seed:          cfg.Feed.Sim.Seed,
			TickInterval:  cfg.Feed.Sim.TickInterval,
			InitialPrice:  cfg.Feed.Sim.InitialPrice,
			VolatilityPct: cfg.Feed.Sim.VolatilityPct,
			DriftPct:      cfg.Feed.Sim.DriftPct,
		}, nil)
		sim.Start()
		return sim, nil
	default:
		return nil, fmt.Errorf("unknown feed mode %q", cfg.Feed.Mode)
	}
}

// snapshotModel persists the current model state.
func snapshotModel(ctx context.Context, store storage.ModelStore, model *learning.Model, log zerolog.Logger) {
	if err := store.SaveModel(ctx, model.State()); err != nil {
		log.Warn().Err(err).Msg("persist model snapshot")
		return
	}
	log.Debug().Msg("model snapshot persisted")
}

// logDailySummary logs the account and model state once a day.
func logDailySummary(engine *orchestrator.Engine, log zerolog.Logger) {
	stats := engine.LearningStats()
	budget := engine.DailyBudget()
	log.Info().
		Float64("balance_usd", engine.Balance()).
		Int("open_positions", len(engine.OpenPositions())).
		Int("trades_today", budget.Used).
		Int64("total_trades", stats.Counters.TotalTrades).
		Float64("win_rate", stats.Counters.WinRate).
		Msg("daily summary")
}

// snapshotRequest is the JSON body of POST /api/tokens.
type snapshotRequest struct {
	Address         string  `json:"address"`
	Symbol          string  `json:"symbol"`
	LiquidityUsd    float64 `json:"liquidity_usd"`
	HolderCount     int64   `json:"holder_count"`
	LPBurned        bool    `json:"lp_burned"`
	MintAuthority   *string `json:"mint_authority"`
	FreezeAuthority *string `json:"freeze_authority"`
	PriceUsd        float64 `json:"price_usd"`
	PriceChange24h  float64 `json:"price_change_24h"`
	Volume24hUsd    float64 `json:"volume_24h_usd"`
	MarketCapUsd    float64 `json:"market_cap_usd"`
	TimestampMs     int64   `json:"timestamp_ms"`
}

func (r *snapshotRequest) toDomain() *domain.TokenSnapshot {
	ts := r.TimestampMs
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return &domain.TokenSnapshot{
		Address:         r.Address,
		Symbol:          r.Symbol,
		LiquidityUsd:    r.LiquidityUsd,
		HolderCount:     r.HolderCount,
		LPBurned:        r.LPBurned,
		MintAuthority:   r.MintAuthority,
		FreezeAuthority: r.FreezeAuthority,
		PriceUsd:        r.PriceUsd,
		PriceChange24h:  r.PriceChange24h,
		Volume24hUsd:    r.Volume24hUsd,
		MarketCapUsd:    r.MarketCapUsd,
		TimestampMs:     ts,
	}
}

// newHTTPServer mounts health, metrics, and the engine API.
func newHTTPServer(cfg *config.Config, engine *orchestrator.Engine, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, observability.Handler())
	}

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		budget := engine.DailyBudget()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "running",
			"balance_usd":    engine.Balance(),
			"open_positions": len(engine.OpenPositions()),
			"trades_used":    budget.Used,
			"trades_limit":   budget.Limit,
		})
	})

	mux.HandleFunc("/api/tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req snapshotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
		sig, pos, err := engine.EvaluateToken(r.Context(), req.toDomain())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"classification": sig.Classification,
			"confidence":     sig.Confidence,
			"risk_score":     sig.RiskScore,
			"opened":         pos != nil,
		})
	})

	mux.HandleFunc("/api/positions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.OpenPositions())
	})

	mux.HandleFunc("/api/positions/close", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "token query parameter required", http.StatusBadRequest)
			return
		}
		outcome, err := engine.ClosePosition(r.Context(), token)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	})

	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		writeJSON(w, http.StatusOK, engine.TradeHistory(limit))
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.LearningStats())
	})

	return &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
