package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production ships JSON for log
// ingestion; everything else gets the text handler. Source locations are
// attached so a failed posting pins the call site.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
