package httpclient

import (
	"net/http"
)

// Next sends the request through the rest of the pipeline
type Next func(*http.Request) (*http.Response, error)

// Policy is one step of the client pipeline. It may change the request,
// inspect the response, or call next more than once.
type Policy interface {
	Do(req *http.Request, next Next) (*http.Response, error)
}

// PolicyFunc lets a plain function act as a Policy
type PolicyFunc func(req *http.Request, next Next) (*http.Response, error)

// Do calls f
func (f PolicyFunc) Do(req *http.Request, next Next) (*http.Response, error) {
	return f(req, next)
}
