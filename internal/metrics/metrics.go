package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes used as the "outcome" label.
const (
	OutcomeClosed    = "closed"     // outside market hours
	OutcomeFetchErr  = "fetch_error"
	OutcomeNoData    = "no_data"
	OutcomeUnchanged = "unchanged"
	OutcomeSent      = "sent"
	OutcomeSendErr   = "send_error"
)

// Metrics holds all Prometheus metrics for the signal loop.
type Metrics struct {
	CyclesTotal     *prometheus.CounterVec // labels: outcome
	FetchErrors     prometheus.Counter
	FetchDur        prometheus.Histogram
	BarsFetched     prometheus.Gauge
	IndicatorDur    prometheus.Histogram
	SignalsTotal    prometheus.Counter
	NotifySent      prometheus.Counter
	NotifyFailed    prometheus.Counter
	JournalErrors   prometheus.Counter
	MarketState     prometheus.Gauge // 0=closed, 1=open
	RedisBreaker    prometheus.Gauge // 0=closed, 1=open, 2=half-open
	LastSignalStamp prometheus.Gauge // unix seconds of last emitted signal
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_cycles_total",
			Help: "Polling cycles by outcome",
		}, []string{"outcome"}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_fetch_errors_total",
			Help: "Failed or empty series fetches",
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_fetch_duration_seconds",
			Help:    "Series fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		BarsFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_session_bars",
			Help: "Bars in the last fetched session",
		}),
		IndicatorDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_indicator_duration_seconds",
			Help:    "Indicator engine latency per session recompute",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		SignalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_signals_generated_total",
			Help: "Signals generated (sent or not)",
		}),
		NotifySent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_notifications_sent_total",
			Help: "Signal changes delivered",
		}),
		NotifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_notifications_failed_total",
			Help: "Signal deliveries that failed",
		}),
		JournalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_journal_errors_total",
			Help: "SQLite journal write failures",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		RedisBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		LastSignalStamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_last_signal_timestamp_seconds",
			Help: "Unix time of the last delivered signal",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.FetchErrors,
		m.FetchDur,
		m.BarsFetched,
		m.IndicatorDur,
		m.SignalsTotal,
		m.NotifySent,
		m.NotifyFailed,
		m.JournalErrors,
		m.MarketState,
		m.RedisBreaker,
		m.LastSignalStamp,
	)

	return m
}

// HealthStatus represents the loop health.
type HealthStatus struct {
	mu sync.RWMutex

	MarketOpen   bool      `json:"market_open"`
	LastCycleAt  time.Time `json:"last_cycle_at"`
	LastFetchOK  bool      `json:"last_fetch_ok"`
	LastFetchErr string    `json:"last_fetch_err"`
	LastSignal   string    `json:"last_signal"`
	LastSentAt   time.Time `json:"last_sent_at"`
	TransportOK  bool      `json:"transport_ok"`
	StartedAt    time.Time `json:"started_at"`

	Dependencies map[string]bool    `json:"dependencies"` // optional stores, by name
	LatencyMs    map[string]float64 `json:"latency_ms"`
	LastCheckAt  time.Time          `json:"last_check_at"`

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:    time.Now(),
		TransportOK:  true,
		Dependencies: make(map[string]bool),
		LatencyMs:    make(map[string]float64),
		now:          time.Now,
	}
}

// PingFunc pings one dependency.
type PingFunc func(ctx context.Context) error

// CheckDependency runs ping and records health and latency under name.
func (h *HealthStatus) CheckDependency(ctx context.Context, name string, ping PingFunc) {
	start := time.Now()
	err := ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.Dependencies[name] = err == nil
	h.LatencyMs[name] = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, pings map[string]PingFunc, interval time.Duration) {
	if len(pings) == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				for name, ping := range pings {
					h.CheckDependency(probeCtx, name, ping)
				}
				cancel()
			}
		}
	}()
}

func (h *HealthStatus) SetMarketOpen(v bool) {
	h.mu.Lock()
	h.MarketOpen = v
	h.mu.Unlock()
}

func (h *HealthStatus) RecordCycle(t time.Time) {
	h.mu.Lock()
	h.LastCycleAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) RecordFetch(err error) {
	h.mu.Lock()
	h.LastFetchOK = err == nil
	h.LastFetchErr = ""
	if err != nil {
		h.LastFetchErr = err.Error()
	}
	h.mu.Unlock()
}

func (h *HealthStatus) RecordSent(signal string, t time.Time) {
	h.mu.Lock()
	h.LastSignal = signal
	h.LastSentAt = t
	h.TransportOK = true
	h.mu.Unlock()
}

func (h *HealthStatus) RecordSendFailure() {
	h.mu.Lock()
	h.TransportOK = false
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint. The loop is unhealthy when no
// cycle has completed within staleAfter.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	const staleAfter = 15 * time.Minute
	now := h.now()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case h.LastCycleAt.IsZero() && now.Sub(h.StartedAt) > staleAfter,
		!h.LastCycleAt.IsZero() && now.Sub(h.LastCycleAt) > staleAfter:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case h.MarketOpen && (!h.LastFetchOK || !h.TransportOK):
		overallStatus = "degraded"
	}
	if overallStatus == "healthy" {
		for _, ok := range h.Dependencies {
			if !ok {
				overallStatus = "degraded"
			}
		}
	}

	status := struct {
		Status       string `json:"status"`
		Uptime       string `json:"uptime"`
		MarketOpen   bool   `json:"market_open"`
		LastCycleAt  string `json:"last_cycle_at"`
		LastFetchOK  bool   `json:"last_fetch_ok"`
		LastFetchErr string `json:"last_fetch_err,omitempty"`
		LastSignal   string `json:"last_signal"`
		LastSentAt   string `json:"last_sent_at"`
		TransportOK  bool   `json:"transport_ok"`

		Dependencies map[string]bool    `json:"dependencies"`
		LatencyMs    map[string]float64 `json:"latency_ms"`
	}{
		Status:       overallStatus,
		Uptime:       now.Sub(h.StartedAt).Round(time.Second).String(),
		MarketOpen:   h.MarketOpen,
		LastCycleAt:  h.LastCycleAt.Format(time.RFC3339),
		LastFetchOK:  h.LastFetchOK,
		LastFetchErr: h.LastFetchErr,
		LastSignal:   h.LastSignal,
		LastSentAt:   h.LastSentAt.Format(time.RFC3339),
		TransportOK:  h.TransportOK,
		Dependencies: h.Dependencies,
		LatencyMs:    h.LatencyMs,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer is usually
// prometheus.DefaultGatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("[metrics] server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("[metrics] server error", slog.Any("error", err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
