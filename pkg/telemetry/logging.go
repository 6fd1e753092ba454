package telemetry

import (
	"io"
	"log/slog"
	"os"
)

// LoggingConfig controls the default slog handler installed by
// SetupLogging.
type LoggingConfig struct {
	Level  slog.Level
	JSON   bool
	Output io.Writer
}

// SetupLogging installs a process-wide default slog.Logger and returns
// it. JSON output is used in production deployments so log lines are
// directly machine-parseable; text output reads better in local
// development.
func SetupLogging(cfg LoggingConfig) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = defaultOutput()
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func defaultOutput() io.Writer {
	return os.Stdout
}
