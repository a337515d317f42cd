// Command model-gateway runs the local chat-completion gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/modelrelay/model-gateway/internal/analytics"
	"github.com/modelrelay/model-gateway/internal/config"
	"github.com/modelrelay/model-gateway/internal/gateway"
	"github.com/modelrelay/model-gateway/internal/lifecycle"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	port := flag.Int("port", 0, "override server port")
	simulate := flag.Bool("simulate", false, "force simulate mode (no upstream calls)")
	flag.Parse()

	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *simulate {
		cfg.Upstream.Mode = "simulate"
	}

	setupLogging(cfg.Logging)

	store, err := openStore(cfg.Analytics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open analytics store")
	}
	defer func() { _ = store.Close() }()

	coord := lifecycle.NewCoordinator(context.Background())
	gw := gateway.New(cfg, store, coord)

	// SIGINT/SIGTERM trigger the same cooperative path as POST /api/shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		coord.Signal()
	}()

	if err := gw.Start(); err != nil {
		log.Fatal().Err(err).Msg("gateway exited with error")
	}
	log.Info().Msg("gateway stopped")
}

// openStore builds the call-history backend named by config.
func openStore(cfg config.AnalyticsConfig) (analytics.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return analytics.NewSQLiteStore(cfg.Path)
	default:
		return analytics.NewMemoryStore(), nil
	}
}
