package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienstroheker/RelayGate/internal/logging"
)

func serveLogged(t *testing.T, level logging.Level, handler http.HandlerFunc, req *http.Request) []string {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := logging.NewWithOutput(level, buf)

	Logger(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func TestLogger_LogsRequestAndResponse(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("test response"))
	}

	lines := serveLogged(t, logging.InfoLevel, handler, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d: %v", len(lines), lines)
	}

	for _, want := range []string{"Request received", "method=GET", "path=/api/stats", "remote_addr="} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("Expected %q in first log line, got: %s", want, lines[0])
		}
	}
	for _, want := range []string{"Response sent", "path=/api/stats", "status=200", "bytes=13", "duration="} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("Expected %q in second log line, got: %s", want, lines[1])
		}
	}
}

func TestLogger_LogsWithTelemetryIDs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), RequestIDKey, "test-request-id")
	ctx = context.WithValue(ctx, ClientRequestIDKey, "test-client-id")

	lines := serveLogged(t, logging.InfoLevel, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, req.WithContext(ctx))

	for _, line := range lines {
		if !strings.Contains(line, "request_id=test-request-id") {
			t.Errorf("Expected request id in %s", line)
		}
		if !strings.Contains(line, "client_request_id=test-client-id") {
			t.Errorf("Expected client request id in %s", line)
		}
	}
}

func TestLogger_StatusLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusMethodNotAllowed, "INFO"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			lines := serveLogged(t, logging.InfoLevel, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, httptest.NewRequest(http.MethodGet, "/test", nil))

			last := lines[len(lines)-1]
			if !strings.Contains(last, " "+tt.level+" Response sent") {
				t.Errorf("Expected %s response log, got: %s", tt.level, last)
			}
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	rw := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	_, _ = rw.Write([]byte("abc"))

	if rw.status != http.StatusCreated {
		t.Errorf("Expected status code 201, got %d", rw.status)
	}
	if rw.bytes != 3 {
		t.Errorf("Expected 3 bytes, got %d", rw.bytes)
	}
}

func TestLogger_StoresLoggerInContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewWithOutput(logging.InfoLevel, buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Info("from handler")
		w.WriteHeader(http.StatusOK)
	})

	Logger(logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ctx", nil))

	if !strings.Contains(buf.String(), "from handler method=GET path=/ctx") {
		t.Errorf("Expected handler log to carry request fields, got: %s", buf.String())
	}
}

func TestLogger_NilLogger(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	Logger(nil)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("Expected handler to be called")
	}
}
