// Operational endpoints: shutdown and cache administration. All are
// loopback-only and POST-only.
package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// handleShutdown signals cooperative shutdown and responds immediately,
// before the drain begins. Repeated calls are harmless.
func (g *Gateway) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !isLoopback(r.RemoteAddr) {
		writeError(w, "shutdown endpoint is restricted to localhost", "forbidden", http.StatusForbidden)
		return
	}

	already := g.coord.Signaled()
	g.coord.Signal()
	if already {
		log.Debug().Msg("shutdown already in progress")
	}
	writeJSON(w, map[string]string{"status": "shutdown_initiated"})
}

func (g *Gateway) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !isLoopback(r.RemoteAddr) {
		writeError(w, "cache admin is restricted to localhost", "forbidden", http.StatusForbidden)
		return
	}

	removed := g.cache.Len()
	g.cache.Clear()
	log.Info().Int("removed", removed).Msg("cache cleared")
	writeJSON(w, map[string]any{"status": "cleared", "removed": removed})
}

// handleCacheInvalidate removes a single entry by fingerprint.
func (g *Gateway) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !isLoopback(r.RemoteAddr) {
		writeError(w, "cache admin is restricted to localhost", "forbidden", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		writeError(w, "failed to read request", "invalid_request", http.StatusBadRequest)
		return
	}
	var req struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Fingerprint == "" {
		writeError(w, "fingerprint is required", "invalid_request", http.StatusBadRequest)
		return
	}

	removed := g.cache.Invalidate(req.Fingerprint)
	writeJSON(w, map[string]any{"status": "ok", "removed": removed})
}
