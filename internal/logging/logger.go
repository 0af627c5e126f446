package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"
)

// New returns the process logger: colourised text for dev builds, JSON otherwise.
func New(cfg config.Config, version string, appName string) *slog.Logger {
	return NewTo(os.Stdout, cfg, version, appName)
}

// NewTo is New with an explicit destination; the CLI logs to stderr.
func NewTo(w io.Writer, cfg config.Config, version string, appName string) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	)
}
