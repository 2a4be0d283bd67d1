// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solana-trade-engine/internal/domain"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Signal metrics
	SignalsGenerated  *prometheus.CounterVec
	SignalsDowngraded prometheus.Counter
	SignalConfidence  prometheus.Histogram
	SignalRiskScore   prometheus.Histogram

	// Position metrics
	PositionsOpened   prometheus.Counter
	PositionsClosed   *prometheus.CounterVec
	PositionsRejected *prometheus.CounterVec
	OpenPositions     prometheus.Gauge
	TradePnLUsd       prometheus.Histogram

	// Tick metrics
	TicksApplied        prometheus.Counter
	TickHandlingLatency prometheus.Histogram

	// Learning metrics
	OutcomesRecorded *prometheus.CounterVec
	ModelWinRate     prometheus.Gauge
	FactorWeight     *prometheus.GaugeVec
	MinLiquidityUsd  prometheus.Gauge

	// Account metrics
	AccountBalanceUsd prometheus.Gauge
	DailyTradesUsed   prometheus.Gauge

	// Storage metrics
	StorePersistErrors *prometheus.CounterVec
	StoreQueryDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trade_engine"
	}

	return &Metrics{
		SignalsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "generated_total",
			Help:      "Total signals generated by classification",
		}, []string{"classification"}),
		SignalsDowngraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "downgraded_total",
			Help:      "Total signals downgraded by learned thresholds",
		}),
		SignalConfidence: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "confidence",
			Help:      "Confidence of generated signals",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		SignalRiskScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "risk_score",
			Help:      "Risk score of generated signals",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),

		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "opened_total",
			Help:      "Total positions opened",
		}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Total positions closed by exit reason",
		}, []string{"reason"}),
		PositionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "rejected_total",
			Help:      "Total position opens rejected by cause",
		}, []string{"cause"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Number of currently open positions",
		}),
		TradePnLUsd: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "pnl_usd",
			Help:      "Realized PnL per closed trade in USD",
			Buckets:   []float64{-500, -250, -100, -50, -10, 0, 10, 50, 100, 250, 500},
		}),

		TicksApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ticks",
			Name:      "applied_total",
			Help:      "Total price ticks applied to open positions",
		}),
		TickHandlingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ticks",
			Name:      "handling_latency_seconds",
			Help:      "Tick handling latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		OutcomesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "outcomes_recorded_total",
			Help:      "Total trade outcomes fed to the model by result",
		}, []string{"result"}),
		ModelWinRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "win_rate",
			Help:      "Model win rate over all recorded trades",
		}),
		FactorWeight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "factor_weight",
			Help:      "Current model weight per signal factor",
		}, []string{"factor"}),
		MinLiquidityUsd: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "min_liquidity_usd",
			Help:      "Learned minimum liquidity threshold in USD",
		}),

		AccountBalanceUsd: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "balance_usd",
			Help:      "Simulated account balance in USD",
		}),
		DailyTradesUsed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "daily_trades_used",
			Help:      "Trades opened inside the rolling daily window",
		}),

		StorePersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "persist_errors_total",
			Help:      "Total persistence errors by store",
		}, []string{"store"}),
		StoreQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
	}
}

// ObserveSignal records one generated signal.
func (m *Metrics) ObserveSignal(s *domain.Signal) {
	m.SignalsGenerated.WithLabelValues(string(s.Classification)).Inc()
	m.SignalConfidence.Observe(s.Confidence)
	m.SignalRiskScore.Observe(s.RiskScore)
}

// ObserveModel exports the model state gauges.
func (m *Metrics) ObserveModel(state *domain.ModelState) {
	m.ModelWinRate.Set(state.Counters.WinRate)
	m.MinLiquidityUsd.Set(state.Thresholds.MinLiquidityUsd)
	for factor, w := range state.Weights {
		m.FactorWeight.WithLabelValues(string(factor)).Set(w)
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
