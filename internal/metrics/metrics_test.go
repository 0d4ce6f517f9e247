package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	r := New()

	r.RecordRequest(true, "", "")
	r.RecordRequest(false, "L2", "validator_reject")
	r.RecordRequest(false, "L2", "validator_reject")
	r.RecordCache(true)
	r.RecordCache(false)
	r.RecordCache(false)
	r.RecordOutcome("WIN")
	r.SetWeights(map[string]float64{"pattern": 2.5, "trend": 0.68})
	r.ObserveStage("layer1", 3*time.Millisecond)
	r.RecordHTTP("/api/v1/signals", "POST", 422, 10*time.Millisecond)

	if got := testutil.ToFloat64(r.requests.WithLabelValues("failure", "L2", "validator_reject")); got != 2 {
		t.Errorf("rejections = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.bundleCache.WithLabelValues("miss")); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.weights.WithLabelValues("pattern")); got != 2.5 {
		t.Errorf("pattern weight = %v, want 2.5", got)
	}
	if got := testutil.ToFloat64(r.httpRequests.WithLabelValues("/api/v1/signals", "POST", "4xx")); got != 1 {
		t.Errorf("http 4xx = %v, want 1", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.RecordRequest(true, "", "")
	r.ObserveStage("fetch", time.Second)
	r.RecordCache(true)
	r.RecordFetchError("1h")
	r.RecordProposal("BUY")
	r.RecordOutcome("LOSS")
	r.SetWeights(map[string]float64{"trend": 1})
	r.RecordHTTP("/", "GET", 200, time.Millisecond)
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.RecordProposal("SELL")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `signal_engine_proposals_total{direction="SELL"} 1`) {
		t.Errorf("proposal counter missing from exposition:\n%s", body)
	}
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordProposal("BUY")
	if got := testutil.ToFloat64(b.proposals.WithLabelValues("BUY")); got != 0 {
		t.Errorf("registries share state: %v", got)
	}
}
