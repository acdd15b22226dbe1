// Package metrics exposes Prometheus counters/gauges for the quoting
// daemon. Grounded on chidi150c-coinbase/metrics.go's package-level
// prometheus.NewCounterVec/NewGauge + init()-time MustRegister idiom.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// QuotesPlaced counts successful OrderReconciler.UpdateQuote calls, by
	// ticker.
	QuotesPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoter_quotes_placed_total",
			Help: "Quotes sent to the reconciler, by ticker.",
		},
		[]string{"ticker"},
	)

	// QuotesDenied counts RiskGate denials, by ticker and reason.
	QuotesDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoter_quotes_denied_total",
			Help: "Quotes denied by the risk gate, by ticker and reason.",
		},
		[]string{"ticker", "reason"},
	)

	// Fills counts processed fills, by ticker and action.
	Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoter_fills_total",
			Help: "Fills processed, by ticker and action.",
		},
		[]string{"ticker", "action"},
	)

	// Halts counts trading-halt transitions, by source (risk_gate, circuit_breaker, drawdown).
	Halts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoter_halts_total",
			Help: "Trading halts, by source.",
		},
		[]string{"source"},
	)

	// ReconcileLatency measures update_quotes wall time in seconds.
	ReconcileLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quoter_reconcile_latency_seconds",
			Help:    "update_quotes latency, by ticker.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"ticker"},
	)

	// CircuitBreakerPaused reports whether the circuit breaker's cooldown
	// is currently active (1) or not (0).
	CircuitBreakerPaused = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quoter_circuit_breaker_paused",
			Help: "1 if the circuit breaker cooldown is active, else 0.",
		},
	)

	// DrawdownPositionMultiplier reports DrawdownManager's current size
	// multiplier in [0,1].
	DrawdownPositionMultiplier = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quoter_drawdown_position_multiplier",
			Help: "Current drawdown-scaled position size multiplier.",
		},
	)

	// DailyPnL reports RiskGate's running daily realized P&L in cents.
	DailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quoter_daily_pnl_cents",
			Help: "Running daily realized P&L, in cents.",
		},
	)
)

func init() {
	prometheus.MustRegister(QuotesPlaced, QuotesDenied, Fills, Halts)
	prometheus.MustRegister(ReconcileLatency)
	prometheus.MustRegister(CircuitBreakerPaused, DrawdownPositionMultiplier, DailyPnL)
}

// ObserveReconcile records one update_quotes timing sample for ticker.
func ObserveReconcile(ticker string, seconds float64) {
	ReconcileLatency.WithLabelValues(ticker).Observe(seconds)
}

// RecordDeny increments the denial counter for ticker/reason.
func RecordDeny(ticker, reason string) {
	QuotesDenied.WithLabelValues(ticker, reason).Inc()
}

// RecordHalt increments the halt counter for source.
func RecordHalt(source string) {
	Halts.WithLabelValues(source).Inc()
}
