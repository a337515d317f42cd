package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/modelrelay/model-gateway/internal/analytics"
	"github.com/modelrelay/model-gateway/internal/config"
	"github.com/modelrelay/model-gateway/internal/lifecycle"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Upstream.Mode = "simulate"
	cfg.Metrics.AggregationInterval = 20 * time.Millisecond
	return cfg
}

func newTestGateway(t *testing.T, cfg *config.Config) (*Gateway, *analytics.MemoryStore, *lifecycle.Coordinator) {
	t.Helper()
	store := analytics.NewMemoryStore()
	coord := lifecycle.NewCoordinator(context.Background())
	g := New(cfg, store, coord)
	t.Cleanup(coord.Signal)
	return g, store, coord
}

func chatBody(model, content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"model":    model,
		"messages": []map[string]string{{"role": "user", "content": content}},
	})
	return b
}

func postChat(g *Gateway, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:50000"
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func localRequest(g *Gateway, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:50000"
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func TestChatCompletions_MissThenHit(t *testing.T) {
	g, store, _ := newTestGateway(t, testConfig(t))
	body := chatBody("claude-sonnet-4", "What is the capital of France?")

	first := postChat(g, body)
	require.Equal(t, http.StatusOK, first.Code)
	require.False(t, gjson.GetBytes(first.Body.Bytes(), "cache_hit").Bool())
	cost := gjson.GetBytes(first.Body.Bytes(), "cost").Float()
	require.Greater(t, cost, 0.0)

	second := postChat(g, body)
	require.Equal(t, http.StatusOK, second.Code)
	require.True(t, gjson.GetBytes(second.Body.Bytes(), "cache_hit").Bool())

	// Identical except the exempt fields: response id and the hit flag.
	var a, b ChatResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, strings.HasPrefix(b.ID, "cache-"))
	assert.Equal(t, a.Content, b.Content)
	assert.Equal(t, a.Model, b.Model)
	assert.Equal(t, a.Usage, b.Usage)
	assert.Equal(t, a.Cost, b.Cost)

	// The hit ledger line carries the original cost, not zero.
	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].CacheHit)
	assert.False(t, recent[1].CacheHit)
	assert.Equal(t, recent[1].CostNanos, recent[0].CostNanos)
	assert.Greater(t, recent[0].CostNanos, int64(0))
}

func TestChatCompletions_DifferentTemperatureMisses(t *testing.T) {
	g, _, _ := newTestGateway(t, testConfig(t))

	warm := chatBody("claude-sonnet-4", "hello")
	require.Equal(t, http.StatusOK, postChat(g, warm).Code)

	withTemp, _ := json.Marshal(map[string]any{
		"model":       "claude-sonnet-4",
		"messages":    []map[string]string{{"role": "user", "content": "hello"}},
		"temperature": 0.9,
	})
	rec := postChat(g, withTemp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, gjson.GetBytes(rec.Body.Bytes(), "cache_hit").Bool())
}

func TestChatCompletions_MalformedRequests(t *testing.T) {
	g, store, _ := newTestGateway(t, testConfig(t))

	cases := []string{
		`not json`,
		`{"messages":[{"role":"user","content":"hi"}]}`,
		`{"model":"claude-sonnet-4"}`,
		`{"model":"claude-sonnet-4","messages":[{"content":"no role"}]}`,
	}
	for _, body := range cases {
		rec := postChat(g, []byte(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
		assert.Equal(t, "invalid_request", gjson.GetBytes(rec.Body.Bytes(), "error.type").String())
	}

	// Rejected before any cache or ledger interaction.
	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.Equal(t, 0, g.cache.Len())
}

func TestChatCompletions_MethodNotAllowed(t *testing.T) {
	g, _, _ := newTestGateway(t, testConfig(t))
	rec := localRequest(g, http.MethodGet, "/v1/chat/completions", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChatCompletions_UnknownModelCostsZero(t *testing.T) {
	g, store, _ := newTestGateway(t, testConfig(t))

	rec := postChat(g, chatBody("mystery-9000", "hi"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Pricing-Warning"))
	assert.Equal(t, 0.0, gjson.GetBytes(rec.Body.Bytes(), "cost").Float())

	recent, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(0), recent[0].CostNanos)
	assert.Equal(t, analytics.OutcomeSuccess, recent[0].Outcome)
}

func TestChatCompletions_UpstreamFailureAfterRetries(t *testing.T) {
	var calls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	cfg := testConfig(t)
	cfg.Upstream.Mode = "forward"
	cfg.Upstream.Endpoint = upstream.URL
	cfg.Upstream.MaxAttempts = 3
	cfg.Upstream.BackoffInitial = time.Millisecond
	cfg.Upstream.BackoffMax = 2 * time.Millisecond
	g, store, _ := newTestGateway(t, cfg)

	rec := postChat(g, chatBody("claude-sonnet-4", "hi"))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream_error", gjson.GetBytes(rec.Body.Bytes(), "error.type").String())
	assert.Equal(t, int64(3), calls.Load())

	recent, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, analytics.OutcomeFailure, recent[0].Outcome)

	// Failures are never cached; a later success must go upstream again.
	assert.Equal(t, 0, g.cache.Len())
}

func TestChatCompletions_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	cfg := testConfig(t)
	cfg.Upstream.Mode = "forward"
	cfg.Upstream.Endpoint = upstream.URL
	cfg.Upstream.BackoffInitial = time.Millisecond
	g, _, _ := newTestGateway(t, cfg)

	rec := postChat(g, chatBody("claude-sonnet-4", "hi"))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, int64(1), calls.Load())
}

func TestStats_ColdStartAndLoopbackGuard(t *testing.T) {
	g, _, _ := newTestGateway(t, testConfig(t))
	require.Equal(t, http.StatusOK, postChat(g, chatBody("claude-sonnet-4", "hi")).Code)

	rec := localRequest(g, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.GetBytes(rec.Body.Bytes(), "total_requests").Int())

	remote := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	remote.RemoteAddr = "203.0.113.7:9999"
	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, remote)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStatsHistory_ReturnsAggregatedWindow(t *testing.T) {
	g, _, coord := newTestGateway(t, testConfig(t))
	require.Equal(t, http.StatusOK, postChat(g, chatBody("claude-sonnet-4", "hi")).Code)

	coord.Go("aggregator", g.agg.Run)
	time.Sleep(60 * time.Millisecond)
	coord.Signal()
	require.True(t, coord.AwaitDrain(time.Second))

	rec := localRequest(g, http.MethodGet, "/api/stats/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	count := gjson.GetBytes(rec.Body.Bytes(), "count").Int()
	assert.GreaterOrEqual(t, count, int64(1))

	// A window in the far past is empty but well-formed.
	rec = localRequest(g, http.MethodGet, "/api/stats/history?start=1000&end=2000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), gjson.GetBytes(rec.Body.Bytes(), "count").Int())
}

// gatedStore counts Summary calls and can be switched into a slow mode
// where Summary blocks until the caller's context expires.
type gatedStore struct {
	analytics.Store
	summaryCalls atomic.Int64
	slow         atomic.Bool
}

func (s *gatedStore) Summary(ctx context.Context) (analytics.Summary, error) {
	s.summaryCalls.Add(1)
	if s.slow.Load() {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return analytics.Summary{}, ctx.Err()
		}
	}
	return s.Store.Summary(ctx)
}

func TestStats_ServedFromRingDespiteSlowStore(t *testing.T) {
	cfg := testConfig(t)
	store := &gatedStore{Store: analytics.NewMemoryStore()}
	coord := lifecycle.NewCoordinator(context.Background())
	g := New(cfg, store, coord)

	coord.Go("aggregator", g.agg.Run)
	require.Eventually(t, func() bool {
		_, ok := g.agg.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)
	coord.Signal()
	require.True(t, coord.AwaitDrain(time.Second))

	// Reads keep coming from the snapshot even when the ledger is wedged.
	store.slow.Store(true)
	before := store.summaryCalls.Load()
	started := time.Now()
	rec := localRequest(g, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, time.Since(started), 100*time.Millisecond)
	assert.Equal(t, before, store.summaryCalls.Load())
}

func TestHealth(t *testing.T) {
	g, _, _ := newTestGateway(t, testConfig(t))
	rec := localRequest(g, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", gjson.GetBytes(rec.Body.Bytes(), "status").String())
}

func TestShutdownEndpoint_RespondsImmediatelyAndIdempotent(t *testing.T) {
	g, _, coord := newTestGateway(t, testConfig(t))

	rec := localRequest(g, http.MethodPost, "/api/shutdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shutdown_initiated", gjson.GetBytes(rec.Body.Bytes(), "status").String())
	assert.True(t, coord.Signaled())

	again := localRequest(g, http.MethodPost, "/api/shutdown", nil)
	assert.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "shutdown_initiated", gjson.GetBytes(again.Body.Bytes(), "status").String())

	get := localRequest(g, http.MethodGet, "/api/shutdown", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, get.Code)
}

func TestCacheAdminEndpoints(t *testing.T) {
	g, _, _ := newTestGateway(t, testConfig(t))
	require.Equal(t, http.StatusOK, postChat(g, chatBody("claude-sonnet-4", "hi")).Code)
	require.Equal(t, 1, g.cache.Len())

	rec := localRequest(g, http.MethodPost, "/api/cache/invalidate", []byte(`{"fingerprint":"nope"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, gjson.GetBytes(rec.Body.Bytes(), "removed").Bool())

	rec = localRequest(g, http.MethodPost, "/api/cache/invalidate", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = localRequest(g, http.MethodPost, "/api/cache/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.GetBytes(rec.Body.Bytes(), "removed").Int())
	assert.Equal(t, 0, g.cache.Len())
}

func TestStream_ClosesPromptlyOnShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.StreamInterval = 10 * time.Second
	g, _, coord := newTestGateway(t, cfg)

	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: stats\n", line)

	// The stream must end within a fraction of the 10s interval.
	coord.Signal()
	done := make(chan struct{})
	go func() {
		for {
			if _, err := reader.ReadString('\n'); err != nil {
				close(done)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after shutdown signal")
	}
	require.True(t, coord.AwaitDrain(time.Second))
}

func TestStream_EmitsStatsPayload(t *testing.T) {
	cfg := testConfig(t)
	g, _, _ := newTestGateway(t, cfg)
	require.Equal(t, http.StatusOK, postChat(g, chatBody("claude-haiku-4", "hi")).Code)

	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stream?interval=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var data string
	for i := 0; i < 5; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
			break
		}
	}
	require.NotEmpty(t, data)
	assert.Equal(t, int64(1), gjson.Get(data, "total_requests").Int())
	assert.Greater(t, gjson.Get(data, "total_cost_usd").Float(), 0.0)
}

func TestSimulatorDeterminism(t *testing.T) {
	s := NewSimulator()
	req := &ChatRequest{
		Model:    "claude-sonnet-4",
		Messages: []Message{{Role: "user", Content: "repeat after me"}},
	}
	a, err := s.Complete(context.Background(), req, nil)
	require.NoError(t, err)
	b, err := s.Complete(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, fmt.Sprintf("Simulated %s response to: %s", req.Model, "repeat after me"), a.Content)
	assert.Greater(t, a.Usage.InputTokens, int64(0))
	assert.Greater(t, a.Usage.OutputTokens, int64(0))
}
