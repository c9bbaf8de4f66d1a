// Package logger wraps zerolog with the service's standard fields.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level       string // debug, info, warn, error
	Environment string // development renders human-readable console output
	ServiceName string
	Version     string
	Output      io.Writer
}

// Logger is the service logger. The embedded zerolog.Logger is exposed so
// middleware can take a *zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// New builds a logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Environment, "development") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Logger()

	return &Logger{Logger: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

type ctxKey struct{}

// WithRequestID stores the request id on ctx so FromContext can attach it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestID returns the request id stored on ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns l enriched with request-scoped fields from ctx.
func (l *Logger) FromContext(ctx context.Context) *zerolog.Logger {
	zl := l.Logger
	if id := RequestID(ctx); id != "" {
		zl = zl.With().Str("request_id", id).Logger()
	}
	return &zl
}
