// Package logctx carries a zerolog.Logger through context.Context.
//
// The polling loops attach per-iteration fields (iteration number, staged
// day, target schema) once at the top of an iteration; every package below
// logs through FromContext and inherits them.
//
//	ctx = logctx.WithInt(ctx, "iteration", n)
//	ctx = logctx.WithStr(ctx, "day", day.String())
//	logctx.FromContext(ctx).Info().Msg("staged day")
package logctx

import (
	"context"

	"github.com/eunmann/salesetl/pkg/logging"
	"github.com/rs/zerolog"
)

type loggerKey struct{}

// WithLogger returns a new context with the given logger attached.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context. Without one it falls
// back to the process logger from pkg/logging.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithStr returns a new context whose logger has the string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithInt returns a new context whose logger has the int field added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	logger := FromContext(ctx).With().Int(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithComponent tags the context logger with a component field. A context
// without a logger is seeded from pkg/logging.
func WithComponent(ctx context.Context, component string) context.Context {
	if ctx != nil {
		if _, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return WithStr(ctx, "component", component)
		}
	}
	return WithLogger(ctx, logging.WithComponent(component))
}
