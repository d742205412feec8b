package httpclient

import (
	"fmt"
	"net/http"
)

// RequestError is a request that never got a response, e.g. because the
// relay status API is not listening. URL has any password redacted.
type RequestError struct {
	Method string
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewErrorPolicy turns transport failures into a *RequestError
func NewErrorPolicy() Policy {
	return PolicyFunc(func(req *http.Request, next Next) (*http.Response, error) {
		resp, err := next(req)
		if err != nil {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			return nil, &RequestError{Method: req.Method, URL: req.URL.Redacted(), Err: err}
		}
		return resp, nil
	})
}
