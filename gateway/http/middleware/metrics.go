package middleware

import (
	"net/http"

	"github.com/julienstroheker/RelayGate/internal/stats"
)

// Metrics counts every request served by the status API into s.
// A nil s makes it a pass-through.
func Metrics(s *stats.Stats) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s != nil {
				s.StatusRequest()
			}
			next.ServeHTTP(w, r)
		})
	}
}
