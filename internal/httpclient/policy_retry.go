package httpclient

import (
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/julienstroheker/RelayGate/internal/logging"
)

// maxRetryAfter caps how long a Retry-After header can make us wait
const maxRetryAfter = 30 * time.Second

// RetryPolicy retries idempotent requests that failed or got a retryable status
type RetryPolicy struct {
	maxRetries       int
	retryDelay       time.Duration
	retryStatusCodes []int
	logger           *logging.Logger
}

// RetryOptions contains configuration for RetryPolicy
type RetryOptions struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int

	// RetryDelay is the initial delay between retries (default: 500ms)
	RetryDelay time.Duration

	// RetryStatusCodes defines which HTTP status codes should trigger a retry.
	// Default: 429, 500, 502, 503 and 504.
	RetryStatusCodes []int

	// Logger for debug logging (optional)
	Logger *logging.Logger
}

// NewRetryPolicy creates a new RetryPolicy
func NewRetryPolicy(opts *RetryOptions) *RetryPolicy {
	if opts == nil {
		opts = &RetryOptions{}
	}

	p := &RetryPolicy{
		maxRetries:       opts.MaxRetries,
		retryDelay:       opts.RetryDelay,
		retryStatusCodes: opts.RetryStatusCodes,
		logger:           opts.Logger,
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	if p.retryDelay <= 0 {
		p.retryDelay = 500 * time.Millisecond
	}
	if len(p.retryStatusCodes) == 0 {
		p.retryStatusCodes = []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}
	return p
}

// Do implements Policy interface. The wait between attempts ends early when
// the request context is cancelled.
func (p *RetryPolicy) Do(
	req *http.Request,
	next Next,
) (*http.Response, error) {
	if !isIdempotent(req) {
		return next(req)
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := next(req)
		if err == nil && !p.shouldRetry(resp) {
			return resp, nil
		}
		if attempt == p.maxRetries {
			return resp, err
		}

		delay := p.retryDelay << attempt
		if resp != nil {
			if after, ok := retryAfter(resp); ok {
				delay = after
			}
			// the response is discarded, free its connection
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}

		if p.logger != nil {
			fields := []logging.Field{
				logging.Int("attempt", attempt+1),
				logging.Int("max_retries", p.maxRetries),
				logging.String("url", req.URL.Redacted()),
				logging.Duration("delay", delay),
			}
			if err != nil {
				fields = append(fields, logging.Error(err))
			} else {
				fields = append(fields, logging.Int("status", resp.StatusCode))
			}
			p.logger.Debug("Retrying request", fields...)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		}
	}
}

// shouldRetry determines if a response should be retried
func (p *RetryPolicy) shouldRetry(resp *http.Response) bool {
	if resp == nil {
		return true
	}
	return slices.Contains(p.retryStatusCodes, resp.StatusCode)
}

func isIdempotent(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	default:
		return false
	}
}

// retryAfter reads a Retry-After header given in seconds
func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d, true
}
