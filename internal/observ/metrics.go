package observ

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_admissions_total",
		Help: "Candidates admitted by the risk allocator.",
	}, []string{"instrument"})

	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_rejections_total",
		Help: "Candidates rejected at allocation or gating, by reason.",
	}, []string{"reason"})

	ThrottleBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_throttle_blocks_total",
		Help: "Submissions refused by pacing, by reason (instrument_cooldown, submission_window).",
	}, []string{"reason"})

	KillSwitchActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_kill_switch_active",
		Help: "1 while the daily loss kill switch refuses new submissions.",
	})

	RiskCommitted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_risk_committed_usd",
		Help: "Total risk budget currently reserved.",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_open_positions",
		Help: "Open position count.",
	})

	DailyRealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_daily_realized_pnl_usd",
		Help: "Realized P&L accumulated since the daily reset.",
	})

	UnrealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_unrealized_pnl_usd",
		Help: "Mark-to-market P&L across open positions. Reporting only.",
	})

	BracketTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_bracket_state_transitions_total",
		Help: "Bracket order group state transitions.",
	}, []string{"to"})

	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_source_failures_total",
		Help: "Signal/bar source failures downgraded to degradation events.",
	}, []string{"source"})

	SignalsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_signals_dropped_total",
		Help: "Malformed signals dropped at normalization.",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_tick_duration_seconds",
		Help:    "Fast-cadence tick wall time.",
		Buckets: prometheus.DefBuckets,
	})
)

// Serve exposes /metrics and /healthz on addr. Blocks; callers run it in a
// goroutine. An empty addr disables the listener.
func Serve(addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return srv.ListenAndServe()
}
