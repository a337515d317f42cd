// Package gateway - gateway.go wires the HTTP front end together.
//
// DESIGN: Main composition:
//   - New():      build cache, catalog, aggregator, upstream from config
//   - Start():    spawn the aggregator, serve HTTP, self-stop on signal
//   - Shutdown(): signal, bounded drain, close the server
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/modelrelay/model-gateway/internal/analytics"
	"github.com/modelrelay/model-gateway/internal/cache"
	"github.com/modelrelay/model-gateway/internal/config"
	"github.com/modelrelay/model-gateway/internal/lifecycle"
	"github.com/modelrelay/model-gateway/internal/metrics"
	"github.com/modelrelay/model-gateway/internal/pricing"
)

// Version is stamped at build time.
var Version = "dev"

// Gateway is the local chat-completion gateway.
type Gateway struct {
	cfg     *config.Config
	cache   *cache.ResponseCache
	catalog *pricing.Catalog
	store   analytics.Store
	agg     *metrics.Aggregator
	coord   *lifecycle.Coordinator

	upstream  Upstream
	server    *http.Server
	startedAt time.Time

	stopOnce sync.Once
}

// New builds a gateway from config. The analytics store is injected so the
// persistence choice stays with the caller.
func New(cfg *config.Config, store analytics.Store, coord *lifecycle.Coordinator) *Gateway {
	g := &Gateway{
		cfg:       cfg,
		cache:     cache.New(cfg.Cache.MaxEntries, cfg.Cache.MaxBytes),
		catalog:   buildCatalog(cfg.Pricing),
		store:     store,
		coord:     coord,
		startedAt: time.Now(),
	}

	ring := metrics.NewRing(cfg.Metrics.RingCapacity)
	g.agg = metrics.NewAggregator(store, ring, cfg.Metrics.AggregationInterval)

	if cfg.Upstream.Mode == "forward" {
		g.upstream = NewHTTPUpstream(cfg.Upstream, envCredentials(cfg.Upstream.APIKeyEnv))
	} else {
		g.upstream = NewSimulator()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", g.handleChatCompletions)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/api/stats", g.handleStats)
	mux.HandleFunc("/api/stats/history", g.handleStatsHistory)
	mux.HandleFunc("/api/stream", g.handleStream)
	mux.HandleFunc("/api/stream/ws", g.handleStreamWS)
	mux.HandleFunc("/api/shutdown", g.handleShutdown)
	mux.HandleFunc("/api/cache/clear", g.handleCacheClear)
	mux.HandleFunc("/api/cache/invalidate", g.handleCacheInvalidate)

	g.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return g
}

// Handler exposes the route mux for tests.
func (g *Gateway) Handler() http.Handler { return g.server.Handler }

// Start runs the aggregator and blocks serving HTTP until shutdown.
func (g *Gateway) Start() error {
	g.coord.Go("aggregator", g.agg.Run)

	// Self-stop when shutdown is signaled (e.g. via POST /api/shutdown).
	go func() {
		<-g.coord.Done()
		g.stop()
	}()

	log.Info().Str("addr", g.server.Addr).Str("upstream", g.cfg.Upstream.Mode).
		Str("analytics", g.cfg.Analytics.Driver).Msg("gateway listening")

	err := g.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown signals cooperative cancellation, waits a bounded time for
// streams and the aggregator to drain, then closes the HTTP server.
// Safe to call more than once.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.coord.Signal()
	g.stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (g *Gateway) stop() {
	g.stopOnce.Do(func() {
		drained := g.coord.AwaitDrain(g.cfg.Server.DrainTimeout)
		log.Info().Bool("drained", drained).Msg("gateway stopping")

		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := g.server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("server shutdown")
		}
	})
}

// buildCatalog converts config pricing rules into a catalog, falling back
// to the built-in table when none are declared.
func buildCatalog(cfg config.PricingConfig) *pricing.Catalog {
	rules := make([]pricing.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, pricing.Rule{
			Pattern:       r.Pattern,
			InputPerMTok:  decimal.NewFromFloat(r.InputPerMTok),
			OutputPerMTok: decimal.NewFromFloat(r.OutputPerMTok),
		})
	}
	return pricing.FromRules(rules)
}

// envCredentials reads the outbound API key from the configured env var.
func envCredentials(envVar string) CredentialProvider {
	if envVar == "" {
		return nil
	}
	return func() (string, error) {
		return os.Getenv(envVar), nil
	}
}
