package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/relay"
)

func TestObserveStep(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveStep("login", time.Second, nil)
	m.ObserveStep("login", time.Second, apperr.New(apperr.CodeAuth, "login not verified", nil))
	m.ObserveStep("post", time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(m.stepFailures.WithLabelValues("login", apperr.CodeAuth)); got != 1 {
		t.Fatalf("login AUTH failures = %v; want 1", got)
	}
	if got := testutil.ToFloat64(m.stepFailures.WithLabelValues("post", "UNKNOWN")); got != 1 {
		t.Fatalf("post UNKNOWN failures = %v; want 1", got)
	}
	if got := testutil.CollectAndCount(m.stepDuration); got != 3 {
		t.Fatalf("step duration series = %d; want 3", got)
	}
}

func TestObserveRelay(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveRelay(relay.Result{Success: true}, 10*time.Millisecond)
	m.ObserveRelay(relay.Result{Success: true, Recovered: true}, 10*time.Millisecond)
	m.ObserveRelay(relay.Result{Success: false, Error: "no eligible target"}, 10*time.Millisecond)
	m.ObserveRelay(relay.Result{Success: false, Error: "no eligible target"}, 10*time.Millisecond)

	for outcome, want := range map[string]float64{"success": 1, "recovered": 1, "failed": 2} {
		if got := testutil.ToFloat64(m.relayTotal.WithLabelValues(outcome)); got != want {
			t.Fatalf("relay %s = %v; want %v", outcome, got, want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStep("login", time.Second, nil)
	m.ObserveRelay(relay.Result{}, time.Second)
	m.ObserveHTTP("GET", "/health", 200, time.Second)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := MustNewMetrics(nil)
	m.ObserveHTTP("POST", "/api/post", 409, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	want := `threads_agent_http_requests_total{method="POST",route="/api/post",status="409"} 1`
	if !strings.Contains(string(body), want) {
		t.Fatalf("metrics output missing %q:\n%s", want, body)
	}
}
