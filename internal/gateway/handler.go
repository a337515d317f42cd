// handler.go - the chat-completion request path.
//
// DESIGN: Request flow:
//   - validate:   malformed input is rejected before any cache or ledger touch
//   - fingerprint -> cache check
//   - hit:        serve the stored payload byte-identical except exempt fields
//   - miss:       forward (or simulate), price, append CallRecord, populate cache
//
// The cache is fail-open: any trouble there degrades to a miss, never to a
// request failure.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/modelrelay/model-gateway/internal/analytics"
	"github.com/modelrelay/model-gateway/internal/cache"
	"github.com/modelrelay/model-gateway/internal/config"
	"github.com/modelrelay/model-gateway/internal/pricing"
)

// handleChatCompletions processes POST /v1/chat/completions.
func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, "failed to read request", "invalid_request", http.StatusBadRequest)
		return
	}

	req, fingerprint, err := g.validate(body)
	if err != nil {
		writeError(w, err.Error(), "invalid_request", http.StatusBadRequest)
		return
	}

	if !g.cfg.Cache.Disabled {
		if entry, ok := g.cache.Get(fingerprint); ok {
			g.serveCacheHit(w, r, entry, start)
			return
		}
	}

	g.serveMiss(w, r, req, body, fingerprint, start)
}

// validate parses and checks the request body. Returns ErrInvalidRequest
// wrapped with detail; nothing downstream (cache, ledger) has been touched
// when it fails.
func (g *Gateway) validate(body []byte) (*ChatRequest, string, error) {
	fingerprint, err := cache.Fingerprint(body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Model == "" {
		return nil, "", fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if len(req.Messages) == 0 {
		return nil, "", fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}
	for i, m := range req.Messages {
		if m.Role == "" {
			return nil, "", fmt.Errorf("%w: messages[%d].role is required", ErrInvalidRequest, i)
		}
	}
	return &req, fingerprint, nil
}

// serveCacheHit returns the stored payload. The body is byte-identical to
// the original response except the exempt fields: a fresh response id and
// cache_hit flipped to true. The ledger records the original cost so the
// totals reflect cost avoided, not zero.
func (g *Gateway) serveCacheHit(w http.ResponseWriter, r *http.Request, entry cache.Entry, start time.Time) {
	payload := entry.Payload
	payload, _ = sjson.SetBytes(payload, "id", "cache-"+uuid.NewString())
	payload, _ = sjson.SetBytes(payload, "cache_hit", true)

	g.appendRecord(r, analytics.CallRecord{
		Timestamp:    time.Now(),
		Model:        entry.Model,
		InputTokens:  entry.InputTokens,
		OutputTokens: entry.OutputTokens,
		CostNanos:    entry.CostNanos,
		CacheHit:     true,
		Duration:     time.Since(start),
		Outcome:      analytics.OutcomeSuccess,
	})

	log.Debug().Str("model", entry.Model).Msg("cache hit")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// serveMiss forwards the request, prices the result, and populates the cache.
func (g *Gateway) serveMiss(w http.ResponseWriter, r *http.Request, req *ChatRequest, body []byte, fingerprint string, start time.Time) {
	// An unknown model never blocks the response; it is just unpriced.
	costModel, routeErr := g.catalog.Route(req.Model)
	if routeErr != nil {
		log.Warn().Str("model", req.Model).Msg("no pricing rule for model, cost recorded as 0")
	}

	result, err := g.upstream.Complete(r.Context(), req, body)
	if err != nil {
		duration := time.Since(start)
		g.appendRecord(r, analytics.CallRecord{
			Timestamp: time.Now(),
			Model:     req.Model,
			CacheHit:  false,
			Duration:  duration,
			Outcome:   analytics.OutcomeFailure,
		})

		var upErr *UpstreamError
		if errors.As(err, &upErr) {
			log.Error().Err(upErr).Int("attempts", upErr.Attempts).Msg("upstream exhausted")
		}
		writeError(w, "upstream request failed: "+err.Error(), "upstream_error", http.StatusBadGateway)
		return
	}

	cost := pricing.Zero
	if routeErr == nil {
		cost = costModel.Cost(result.Usage.InputTokens, result.Usage.OutputTokens)
	}

	resp := ChatResponse{
		ID:       "resp-" + uuid.NewString(),
		Content:  result.Content,
		Model:    result.Model,
		Usage:    result.Usage,
		Cost:     cost.USD(),
		CacheHit: false,
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		writeError(w, "failed to encode response", "gateway_error", http.StatusInternalServerError)
		return
	}

	g.appendRecord(r, analytics.CallRecord{
		Timestamp:    time.Now(),
		Model:        req.Model,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		CostNanos:    cost.Nanos(),
		CacheHit:     false,
		Duration:     time.Since(start),
		Outcome:      analytics.OutcomeSuccess,
	})

	if !g.cfg.Cache.Disabled {
		g.cache.Put(fingerprint, cache.Entry{
			Payload:      payload,
			Model:        req.Model,
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			CostNanos:    cost.Nanos(),
		}, g.cfg.Cache.TTL)
	}

	w.Header().Set("Content-Type", "application/json")
	if routeErr != nil {
		w.Header().Set("X-Pricing-Warning", fmt.Sprintf("no pricing rule for model %q", req.Model))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// appendRecord writes one ledger line. Append failures are logged, never
// surfaced: the response has already been decided by this point.
func (g *Gateway) appendRecord(r *http.Request, rec analytics.CallRecord) {
	if err := g.store.Append(r.Context(), rec); err != nil {
		log.Error().Err(err).Msg("failed to append call record")
	}
}
