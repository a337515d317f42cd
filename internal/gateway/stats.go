// Stats and health endpoints. Stats reads serve from the pre-aggregated
// snapshot ring, never from the ledger on the hot path.
package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modelrelay/model-gateway/internal/metrics"
)

// handleStats returns the most recent aggregated snapshot. A cold start
// (aggregator has not ticked yet) falls back to a direct computation.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		writeError(w, "stats endpoint is restricted to localhost", "forbidden", http.StatusForbidden)
		return
	}

	snap, ok := g.agg.Latest()
	if !ok {
		computed, err := g.agg.ComputeNow(r.Context())
		if err != nil {
			writeError(w, "stats unavailable", "stats_error", http.StatusServiceUnavailable)
			return
		}
		snap = computed
	}

	writeJSON(w, snap)
}

// handleStatsHistory returns snapshots in an inclusive [start, end] window,
// oldest first. Bounds are unix seconds; both are optional.
func (g *Gateway) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		writeError(w, "stats endpoint is restricted to localhost", "forbidden", http.StatusForbidden)
		return
	}

	start := time.Unix(0, 0)
	end := time.Now()
	if v := r.URL.Query().Get("start"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, "invalid start timestamp", "invalid_request", http.StatusBadRequest)
			return
		}
		start = time.Unix(sec, 0)
	}
	if v := r.URL.Query().Get("end"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, "invalid end timestamp", "invalid_request", http.StatusBadRequest)
			return
		}
		end = time.Unix(sec, 0)
	}

	snaps := g.agg.Range(start, end)
	if snaps == nil {
		snaps = []metrics.StatsSnapshot{}
	}
	writeJSON(w, map[string]any{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(g.startedAt).Round(time.Second).String(),
		"cache":   g.cache.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
