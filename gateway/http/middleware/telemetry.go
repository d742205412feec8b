package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// ClientRequestIDHeader carries the id a caller chose for its request
	ClientRequestIDHeader = "X-Client-Request-Id"

	// RequestIDHeader carries the id the relay assigned to a request
	RequestIDHeader = "X-Request-Id"
)

type contextKey string

const (
	// ClientRequestIDKey is the context key for the client request ID
	ClientRequestIDKey contextKey = "client_request_id"
	// RequestIDKey is the context key for the relay-assigned request ID
	RequestIDKey contextKey = "request_id"
)

// Telemetry assigns every request an id and echoes the caller's own id back.
// Both ids go into the response headers and the request context.
func Telemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if clientID := r.Header.Get(ClientRequestIDHeader); clientID != "" {
			w.Header().Set(ClientRequestIDHeader, clientID)
			ctx = context.WithValue(ctx, ClientRequestIDKey, clientID)
		}

		requestID := uuid.NewString()
		w.Header().Set(RequestIDHeader, requestID)
		ctx = context.WithValue(ctx, RequestIDKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientRequestID retrieves the client request ID from the context
func GetClientRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ClientRequestIDKey).(string)
	return id
}

// GetRequestID retrieves the relay-assigned request ID from the context
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
