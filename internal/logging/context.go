package logging

import (
	"context"
	"io"
)

type contextKey struct{}

// discard is returned by FromContext when no logger was stored
var discard = NewWithOutput(ErrorLevel+1, io.Discard)

// WithContext returns a copy of ctx carrying logger
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a logger that drops everything
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok && logger != nil {
		return logger
	}
	return discard
}
