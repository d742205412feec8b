package httpclient

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/julienstroheker/RelayGate/internal/logging"
)

// LoggingPolicy logs requests and responses at debug level
type LoggingPolicy struct {
	logger        *logging.Logger
	logHeaders    bool
	headerFilters []string
}

// LoggingOptions contains configuration for LoggingPolicy
type LoggingOptions struct {
	// LogHeaders enables logging of request and response headers
	LogHeaders bool

	// HeaderFilters lists headers whose values are redacted, e.g. "Authorization"
	HeaderFilters []string
}

// NewLoggingPolicy creates a new LoggingPolicy
func NewLoggingPolicy(logger *logging.Logger, opts *LoggingOptions) *LoggingPolicy {
	if opts == nil {
		opts = &LoggingOptions{}
	}
	return &LoggingPolicy{
		logger:        logger,
		logHeaders:    opts.LogHeaders,
		headerFilters: opts.HeaderFilters,
	}
}

// Do implements Policy interface
func (p *LoggingPolicy) Do(
	req *http.Request,
	next Next,
) (*http.Response, error) {
	fields := []logging.Field{
		logging.String("method", req.Method),
		logging.String("url", req.URL.Redacted()),
	}
	if id := req.Header.Get(DefaultRequestIDHeader); id != "" {
		fields = append(fields, logging.String("request_id", id))
	}

	reqFields := fields
	if p.logHeaders {
		reqFields = append(reqFields[:len(reqFields):len(reqFields)], p.formatHeaders("request_headers", req.Header))
	}
	p.logger.Debug("HTTP request", reqFields...)

	start := time.Now()
	resp, err := next(req)
	fields = append(fields, logging.Duration("duration", time.Since(start)))

	if err != nil {
		p.logger.Debug("HTTP request failed", append(fields, logging.Error(err))...)
		return resp, err
	}

	fields = append(fields, logging.Int("status", resp.StatusCode))
	if p.logHeaders {
		fields = append(fields, p.formatHeaders("response_headers", resp.Header))
	}
	p.logger.Debug("HTTP response", fields...)
	return resp, nil
}

// formatHeaders renders headers in a stable order, redacting filtered values
func (p *LoggingPolicy) formatHeaders(key string, headers http.Header) logging.Field {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		value := strings.Join(headers[name], ", ")
		for _, filter := range p.headerFilters {
			if strings.EqualFold(name, filter) {
				value = "[REDACTED]"
				break
			}
		}
		parts = append(parts, name+": "+value)
	}
	return logging.String(key, strings.Join(parts, "; "))
}
