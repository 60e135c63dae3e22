package log

import (
	"context"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
)

// NewHandler builds a handler with the given prefix. The level is taken
// from STAGEHAND_LOG_LEVEL ("debug", "info", "warn", "error"), defaulting
// to info.
func NewHandler(name string) slog.Handler {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          name,
		Level:           levelFromEnv(),
	})
}

func New(name string) *slog.Logger {
	return slog.New(NewHandler(name))
}

func NewContext(ctx context.Context, name string) context.Context {
	return IntoContext(ctx, New(name))
}

func levelFromEnv() log.Level {
	lvl, err := log.ParseLevel(os.Getenv("STAGEHAND_LOG_LEVEL"))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

type ctxKey struct{}

// IntoContext adds a logger to a context. Use FromContext to
// pull the logger out.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, falling back to the
// default slog logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// SubLogger derives a new logger from an existing one by extending its prefix.
func SubLogger(base *slog.Logger, suffix string) *slog.Logger {
	if cl, ok := base.Handler().(*log.Logger); ok {
		prefix := cl.GetPrefix()
		if prefix != "" {
			prefix = prefix + "/" + suffix
		} else {
			prefix = suffix
		}
		return slog.New(NewHandler(prefix))
	}

	return slog.New(NewHandler(suffix))
}
