package logger

import (
	"os"

	"github.com/alpinetrade/dex-gateway/config"
	"github.com/rs/zerolog"
)

// New returns a process-wide base logger. Console-formatted in
// development, JSON in production. Call-sites bind signal_id,
// adapter_id, and category via .With() as they become available.
func New(cfg *config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.IsProduction() {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(out).With().Timestamp().Logger()
}
