// Package telemetry wires structured logging, tracing and metrics for a
// dagcore executor.
package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogging configures a global slog logger. JSON if DAGCORE_JSON_LOG is
// 1/true/json, text otherwise.
func InitLogging(service string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("DAGCORE_JSON_LOG"))
	opts := &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()}
	var handler slog.Handler
	if mode == "1" || mode == "true" || mode == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", mode == "1" || mode == "true" || mode == "json")
	return logger
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("DAGCORE_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
