package main

import (
	stdlog "log"
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/modelrelay/model-gateway/internal/config"
)

// setupLogging configures zerolog output and level. Interactive terminals
// get the console writer; files and pipes get JSON lines.
func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out *os.File = os.Stderr
	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			zlog.Warn().Err(err).Str("path", cfg.FilePath).Msg("cannot open log file, using stderr")
		} else {
			out = f
		}
	}

	if out == os.Stderr && term.IsTerminal(int(out.Fd())) {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: out})
	} else {
		zlog.Logger = zlog.Output(out)
	}

	// Route net/http server errors through the same sink.
	stdlog.SetOutput(zlog.Logger)
}
