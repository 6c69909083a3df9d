// Package logging builds the process-wide slog logger: colored tint output
// for terminals or JSON lines for log collectors, always behind the
// secret-redacting handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/flemzord/sitterd/internal/config"
	"github.com/flemzord/sitterd/internal/security"
)

// Options overrides parts of the configured behaviour.
type Options struct {
	// NoColor disables ANSI colors in text output.
	NoColor bool

	// Level, when non-nil, takes precedence over config and LOG_LEVEL.
	Level *slog.Level
}

// New returns a logger writing to w according to cfg. A nil redactor
// disables redaction.
func New(cfg config.LogConfig, w io.Writer, redactor *security.Redactor, opts Options) *slog.Logger {
	level := ParseLevel(cfg.Level)
	if cfg.Level == "" {
		level = ParseLevel(os.Getenv("LOG_LEVEL"))
	}
	if opts.Level != nil {
		level = *opts.Level
	}

	var h slog.Handler
	if cfg.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    opts.NoColor,
		})
	}

	if redactor != nil {
		h = security.NewRedactingHandler(h, redactor)
	}
	return slog.New(h)
}

// ParseLevel maps debug, info, warn and error (case-insensitive) to slog
// levels. Anything else yields info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
