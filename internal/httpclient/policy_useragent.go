package httpclient

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// defaultProduct names callers that do not identify themselves
const defaultProduct = "relaygate-client/1.0"

var defaultUserAgent = userAgent(defaultProduct)

// userAgent appends the Go runtime and platform to product
func userAgent(product string) string {
	return fmt.Sprintf("%s (%s; %s/%s)", product, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// NewUserAgentPolicy identifies requests as coming from product. An empty
// product is sent as relaygate-client; a value that already carries a
// platform comment is sent as is.
func NewUserAgentPolicy(product string) Policy {
	ua := defaultUserAgent
	switch {
	case product == "":
	case strings.Contains(product, "("):
		ua = product
	default:
		ua = userAgent(product)
	}

	return PolicyFunc(func(req *http.Request, next Next) (*http.Response, error) {
		req.Header.Set("User-Agent", ua)
		return next(req)
	})
}
