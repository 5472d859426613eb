package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the root slog.Logger. Every record carries the service
// name so log aggregation can tell this process apart from its collaborators.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "meridian"))
}
