package httpclient

import (
	"net/http"
)

// TraceHeader carries the id passed to relayctl --trace-id so that the
// requests of one invocation can be found in the relay's request log
const TraceHeader = "X-Trace-Span-Id"

// NewTracingPolicy sets TraceHeader to traceID unless the request already
// carries one. An empty traceID disables the policy.
func NewTracingPolicy(traceID string) Policy {
	return PolicyFunc(func(req *http.Request, next Next) (*http.Response, error) {
		if traceID != "" && req.Header.Get(TraceHeader) == "" {
			req.Header.Set(TraceHeader, traceID)
		}
		return next(req)
	})
}
