package observability_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"barefoot_sync/internal/adapters/observability"
	"barefoot_sync/internal/domain"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record one sample so counters are non-zero
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	start := time.Now()
	observability.ObserveSyncRun(domain.SyncResult{
		State: domain.StateCompleted, Created: 2, Updated: 1,
		Errors: []string{"x"}, StartedAt: start, FinishedAt: start.Add(3 * time.Second),
	})

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, want := range []string{
		"barefoot_http_requests_total",
		`barefoot_sync_runs_total{state="completed"}`,
		`barefoot_sync_records_total{outcome="created"}`,
		"barefoot_sync_run_duration_seconds",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output", want)
		}
	}
}

func TestLabelErr(t *testing.T) {
	if got := observability.LabelErr(nil); got != "none" {
		t.Fatalf("nil: %q", got)
	}
	err := domain.E(domain.KindTransport, "GetAllProperty", errors.New("boom"))
	if got := observability.LabelErr(err); got != "TRANSPORT_ERROR" {
		t.Fatalf("kind label: %q", got)
	}
	if got := observability.LabelErr(errors.New("plain")); got != "*errors.errorString" {
		t.Fatalf("fallback label: %q", got)
	}
}
