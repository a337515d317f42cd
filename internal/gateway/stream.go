// Live stats streaming over SSE and WebSocket. Streams are tracked with the
// lifecycle coordinator so shutdown closes them within one select iteration,
// not after the next interval elapses.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/modelrelay/model-gateway/internal/metrics"
)

// handleStream serves stats snapshots as server-sent events. One event is
// emitted immediately on connect, then one per interval until the client
// disconnects or shutdown is signaled.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		writeError(w, "stream endpoint is restricted to localhost", "forbidden", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "streaming unsupported", "stream_error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	release := g.coord.Track("sse-stream")
	defer release()

	interval := g.streamInterval(r)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	emit := func() bool {
		snap, ok := g.latestSnapshot(r)
		if !ok {
			return true
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return false
		}
		if _, err := w.Write([]byte("event: stats\ndata: ")); err != nil {
			return false
		}
		if _, err := w.Write(data); err != nil {
			return false
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !emit() {
		return
	}
	for {
		select {
		case <-ticker.C:
			if !emit() {
				return
			}
		case <-r.Context().Done():
			return
		case <-g.coord.Done():
			// Final frame so well-behaved clients learn why the stream ended.
			_, _ = w.Write([]byte("event: shutdown\ndata: {}\n\n"))
			flusher.Flush()
			return
		}
	}
}

// handleStreamWS is the WebSocket variant of the stats stream.
func (g *Gateway) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		writeError(w, "stream endpoint is restricted to localhost", "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	release := g.coord.Track("ws-stream")
	defer release()

	interval := g.streamInterval(r)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	emit := func() bool {
		snap, ok := g.latestSnapshot(r)
		if !ok {
			return true
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		return wsjson.Write(ctx, conn, snap) == nil
	}

	if !emit() {
		return
	}
	for {
		select {
		case <-ticker.C:
			if !emit() {
				return
			}
		case <-r.Context().Done():
			return
		case <-g.coord.Done():
			_ = conn.Close(websocket.StatusGoingAway, "gateway shutting down")
			return
		}
	}
}

// streamInterval honors an optional ?interval=<seconds> override, clamped
// to [1s, 60s].
func (g *Gateway) streamInterval(r *http.Request) time.Duration {
	interval := g.cfg.Metrics.StreamInterval
	if v := r.URL.Query().Get("interval"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			interval = d
		}
	}
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}

func (g *Gateway) latestSnapshot(r *http.Request) (metrics.StatsSnapshot, bool) {
	if snap, ok := g.agg.Latest(); ok {
		return snap, true
	}
	snap, err := g.agg.ComputeNow(r.Context())
	if err != nil {
		log.Debug().Err(err).Msg("snapshot unavailable for stream tick")
		return metrics.StatsSnapshot{}, false
	}
	return snap, true
}
