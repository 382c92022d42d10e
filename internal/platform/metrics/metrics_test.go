package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTransitionCounter(t *testing.T) {
	m := New()
	m.Transition("result", "pending", "approved")
	m.Transition("result", "pending", "approved")

	got := testutil.ToFloat64(m.transitions.WithLabelValues("result", "pending", "approved"))
	if got != 2 {
		t.Fatalf("transitions = %v, want 2", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodGet, "/v1/goals", http.StatusOK, 20*time.Millisecond)
	m.Operation("submit_result", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"metas_http_requests_total",
		"metas_service_operations_total",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in exposition", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Transition("goal", "suggested", "active")
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.Operation("x", "ok")
	m.EventDropped()
	m.WebsocketClients(1)
}
