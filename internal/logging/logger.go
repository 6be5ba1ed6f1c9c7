package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the process logger. Development gets a console writer,
// everything else JSON with timestamps and caller info.
func New(service, env, level string) zerolog.Logger {
	return newLogger(os.Stdout, service, env, level)
}

func newLogger(out io.Writer, service, env, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Str("service", service).Logger()
	} else {
		logger = zerolog.New(out).
			With().
			Timestamp().
			Caller().
			Str("service", service).
			Logger()
	}

	logger = logger.Level(lvl)
	log.Logger = logger
	return logger
}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromContext returns the request scoped logger, or the global logger when
// none was attached.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
