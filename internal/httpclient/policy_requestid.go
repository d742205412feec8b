package httpclient

import (
	"net/http"

	"github.com/google/uuid"
)

// DefaultRequestIDHeader is the header the relay status API echoes back
const DefaultRequestIDHeader = "X-Client-Request-Id"

// RequestIDPolicy gives each request an id unless the caller already set one
type RequestIDPolicy struct {
	headerName string
}

// NewRequestIDPolicy creates a new RequestIDPolicy
func NewRequestIDPolicy(headerName string) *RequestIDPolicy {
	if headerName == "" {
		headerName = DefaultRequestIDHeader
	}
	return &RequestIDPolicy{headerName: headerName}
}

// NewDefaultRequestIDPolicy creates a RequestIDPolicy using DefaultRequestIDHeader
func NewDefaultRequestIDPolicy() *RequestIDPolicy {
	return NewRequestIDPolicy(DefaultRequestIDHeader)
}

// Do implements Policy interface
func (p *RequestIDPolicy) Do(
	req *http.Request,
	next Next,
) (*http.Response, error) {
	if req.Header.Get(p.headerName) == "" {
		req.Header.Set(p.headerName, uuid.NewString())
	}
	return next(req)
}
