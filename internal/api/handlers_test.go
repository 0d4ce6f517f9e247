package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/logging"
	"signal-engine/internal/market"
	"signal-engine/internal/metrics"
	"signal-engine/internal/signal"
	"signal-engine/internal/timeguard"
	"signal-engine/internal/weights"
)

var tuesday = time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	fetcher, err := market.NewStaticFetcher(market.SyntheticTrend("XAUUSD", market.TF1h, 400, tuesday))
	require.NoError(t, err)

	w := weights.NewEngine(weights.DefaultConfig(), weights.NewMemoryStore(), logging.Nop())
	eng, err := engine.New(engine.DefaultConfig(), fetcher, w, logging.Nop())
	require.NoError(t, err)
	eng.SetClock(func() time.Time { return tuesday })

	guard, err := timeguard.NewGuard(timeguard.DefaultConfig(), nil, logging.Nop())
	require.NoError(t, err)
	eng.SetGuard(guard)

	bus := events.NewEventBus()
	rec := metrics.New()
	eng.SetEventBus(bus)
	eng.SetMetrics(rec)

	cfg.ProductionMode = true
	s := NewServer(cfg, eng, guard, bus, rec, logging.Nop())
	t.Cleanup(s.hub.Stop)
	return s
}

func do(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func goldBody() map[string]interface{} {
	return map[string]interface{}{"symbol": "XAUUSD", "timeframes": []string{"1h", "4h"}}
}

func TestGenerateEndpoint(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())

	w := do(s, http.MethodPost, "/api/v1/signals", goldBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(TraceHeader))

	var resp engine.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, signal.DirectionBuy, resp.Direction)
	require.NotNil(t, resp.Proposal)
	assert.Equal(t, w.Header().Get(TraceHeader), resp.TraceID)
}

func TestGenerateEndpointKeepsCallerTrace(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())

	data, _ := json.Marshal(goldBody())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/signals", bytes.NewReader(data))
	req.Header.Set(TraceHeader, "trace-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp engine.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "trace-123", resp.TraceID)
}

func TestGenerateEndpointStatuses(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())

	tests := []struct {
		name   string
		body   interface{}
		status int
		kind   signal.FailureKind
	}{
		{"invalid symbol", map[string]interface{}{"symbol": ""}, http.StatusBadRequest, signal.KindInvalidRequest},
		{"blackout is a valid answer", map[string]interface{}{"symbol": "XAUUSD", "as_of": "2025-03-07T13:45:00Z"}, http.StatusOK, signal.KindValidatorReject},
		{"missing data", map[string]interface{}{"symbol": "EURUSD"}, http.StatusOK, signal.KindDataMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodPost, "/api/v1/signals", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var resp engine.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.Equal(t, signal.DirectionHold, resp.Direction)
		})
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/signals", strings.NewReader("{"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutcomeEndpoint(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())

	w := do(s, http.MethodPost, "/api/v1/signals", goldBody())
	var gen engine.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gen))
	require.NotNil(t, gen.Proposal)

	w = do(s, http.MethodPost, "/api/v1/outcomes", map[string]interface{}{
		"proposal_id": gen.Proposal.ID,
		"result":      "WIN",
		"pnl_pips":    36.2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out engine.OutcomeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.Applied)
	assert.Equal(t, 1, out.Outcomes)

	w = do(s, http.MethodPost, "/api/v1/outcomes", map[string]interface{}{"proposal_id": "unknown", "result": "LOSS"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(signal.KindOutcomeUnknown))

	w = do(s, http.MethodPost, "/api/v1/outcomes", map[string]interface{}{"proposal_id": "x", "result": "DRAW"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, http.MethodGet, "/api/v1/weights", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap struct {
		Weights  map[string]float64 `json:"weights"`
		Outcomes int                `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.Outcomes)
	assert.Len(t, snap.Weights, 5)
}

func TestGuardEndpoint(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())

	w := do(s, http.MethodGet, "/api/v1/guard?symbol=xauusd&at=2025-03-07T13:45:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "XAUUSD", body["symbol"])
	assert.Equal(t, "BLACKOUT", body["status"])
	assert.Equal(t, "news blackout: NFP", body["reason"])

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/v1/guard", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/v1/guard?symbol=EURUSD&at=yesterday", nil).Code)
}

func TestPriceUpdateEndpoint(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())

	w := do(s, http.MethodPost, "/api/v1/signals", goldBody())
	var gen engine.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gen))
	require.NotNil(t, gen.Proposal)

	path := "/api/v1/proposals/" + gen.Proposal.ID + "/price"
	var body struct {
		ProposalID  string  `json:"proposal_id"`
		OldStopLoss float64 `json:"old_stop_loss"`
		NewStopLoss float64 `json:"new_stop_loss"`
		Triggered   bool    `json:"triggered"`
	}

	// below the first target the stop holds
	w = do(s, http.MethodPost, path, map[string]float64{"price": 197})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, gen.Proposal.ID, body.ProposalID)
	assert.Equal(t, gen.Proposal.StopLoss, body.NewStopLoss)
	assert.False(t, body.Triggered)

	// the first target moves the stop to at least break-even
	w = do(s, http.MethodPost, path, map[string]float64{"price": gen.Proposal.Targets[0].Price})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.GreaterOrEqual(t, body.NewStopLoss, gen.Proposal.Entry)

	w = do(s, http.MethodPost, "/api/v1/proposals/nope/price", map[string]float64{"price": 197})
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.engine.SetClock(func() time.Time { return gen.Proposal.ExpiresAt })
	w = do(s, http.MethodPost, path, map[string]float64{"price": 197})
	assert.Equal(t, http.StatusNotFound, w.Code, "expired proposals are no longer trailed")
}

func TestRateLimiting(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.RatePerMinute = 1
	cfg.RateBurst = 2
	s := newTestServer(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(s, http.MethodGet, "/api/v1/weights", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// health and metrics are not limited
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/health", nil).Code)
}

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	if !rl.Allow("a") || !rl.Allow("b") {
		t.Fatal("first request per key should pass")
	}
	if rl.Allow("a") {
		t.Error("second immediate request for the same key should be limited")
	}
}

type failingCheck struct{}

func (failingCheck) HealthCheck(ctx context.Context) error { return context.DeadlineExceeded }

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())

	w := do(s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	s.AddHealthCheck("database", failingCheck{})
	w = do(s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"unhealthy"`)
}

type stubHistory struct {
	events []events.Event
	limit  int
}

func (h *stubHistory) RecentEvents(ctx context.Context, limit int) ([]events.Event, error) {
	h.limit = limit
	if limit < len(h.events) {
		return h.events[:limit], nil
	}
	return h.events, nil
}

func TestEventsEndpoint(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())

	w := do(s, http.MethodGet, "/api/v1/events", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	history := &stubHistory{events: []events.Event{
		{Type: events.EventOutcomeRecorded, Timestamp: tuesday, Data: map[string]interface{}{"proposal_id": "p2"}},
		{Type: events.EventProposalEmitted, Timestamp: tuesday.Add(-time.Hour), Data: map[string]interface{}{"proposal_id": "p1"}},
	}}
	s.SetEventHistory(history)

	w = do(s, http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultEventLimit, history.limit)

	var body struct {
		Count  int            `json:"count"`
		Events []events.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, events.EventOutcomeRecorded, body.Events[0].Type)

	w = do(s, http.MethodGet, "/api/v1/events?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, history.limit)

	for _, q := range []string{"0", "501", "ten"} {
		w = do(s, http.MethodGet, "/api/v1/events?limit="+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", q)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())
	do(s, http.MethodPost, "/api/v1/signals", goldBody())

	w := do(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `signal_engine_proposals_total{direction="BUY"} 1`)
	assert.Contains(t, body, `signal_engine_http_requests_total{method="POST",route="/api/v1/signals",status="2xx"} 1`)
}

func TestWebSocketStreamsProposals(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello map[string]interface{}
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "CONNECTED", hello["type"])

	data, _ := json.Marshal(goldBody())
	resp, err := http.Post(srv.URL+"/api/v1/signals", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	resp.Body.Close()

	for {
		var ev events.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == events.EventProposalEmitted {
			assert.Equal(t, "XAUUSD", ev.Data["symbol"])
			return
		}
	}
}
