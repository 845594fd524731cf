package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics_RegistersOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.CyclesTotal.WithLabelValues(OutcomeSent).Inc()
	m.NotifySent.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "signalbot_cycles_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected signalbot_cycles_total to be registered")
	}
}

func healthAt(h *HealthStatus, now time.Time) *HealthStatus {
	h.now = func() time.Time { return now }
	return h
}

func decodeHealth(t *testing.T, h http.Handler) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, body
}

func TestHealth_Healthy(t *testing.T) {
	start := time.Date(2026, 10, 19, 4, 0, 0, 0, time.UTC)
	h := NewHealthStatus()
	h.StartedAt = start
	h.SetMarketOpen(true)
	h.RecordCycle(start.Add(time.Minute))
	h.RecordFetch(nil)
	h.RecordSent("MACD: Bullish | Above VWAP", start.Add(time.Minute))

	code, body := decodeHealth(t, healthAt(h, start.Add(2*time.Minute)))
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("expected healthy, got %d %v", code, body)
	}
	if body["last_signal"] != "MACD: Bullish | Above VWAP" {
		t.Errorf("unexpected last_signal %v", body["last_signal"])
	}
}

func TestHealth_DegradedOnFetchError(t *testing.T) {
	start := time.Date(2026, 10, 19, 4, 0, 0, 0, time.UTC)
	h := NewHealthStatus()
	h.StartedAt = start
	h.SetMarketOpen(true)
	h.RecordCycle(start)
	h.RecordFetch(errors.New("timeout"))

	code, body := decodeHealth(t, healthAt(h, start.Add(time.Minute)))
	if code != http.StatusOK || body["status"] != "degraded" {
		t.Fatalf("expected degraded, got %d %v", code, body)
	}
}

func TestHealth_UnhealthyWhenStale(t *testing.T) {
	start := time.Date(2026, 10, 19, 4, 0, 0, 0, time.UTC)
	h := NewHealthStatus()
	h.StartedAt = start
	h.RecordCycle(start)

	code, body := decodeHealth(t, healthAt(h, start.Add(time.Hour)))
	if code != http.StatusServiceUnavailable || body["status"] != "unhealthy" {
		t.Fatalf("expected unhealthy, got %d %v", code, body)
	}
}

func TestHealth_DependencyDown(t *testing.T) {
	start := time.Date(2026, 10, 19, 4, 0, 0, 0, time.UTC)
	h := NewHealthStatus()
	h.StartedAt = start
	h.RecordCycle(start)
	healthAt(h, start.Add(time.Minute))

	h.CheckDependency(context.Background(), "sqlite", func(context.Context) error { return nil })
	h.CheckDependency(context.Background(), "redis", func(context.Context) error { return errors.New("refused") })

	code, body := decodeHealth(t, h)
	if code != http.StatusOK || body["status"] != "degraded" {
		t.Fatalf("expected degraded, got %d %v", code, body)
	}
	deps, _ := body["dependencies"].(map[string]any)
	if deps["redis"] != false || deps["sqlite"] != true {
		t.Errorf("unexpected dependencies %v", deps)
	}
}

func TestServer_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SignalsTotal.Inc()
	srv := NewServer(":0", reg, NewHealthStatus())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "signalbot_signals_generated_total 1") {
		t.Errorf("unexpected /metrics response %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected /healthz 200, got %d", rec.Code)
	}
}
