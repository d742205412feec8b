package handlers

import (
	"net/http"
)

// allowRead answers 405 with an Allow header unless r is a GET or HEAD
func allowRead(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	w.WriteHeader(http.StatusMethodNotAllowed)
	return false
}

// HealthHandler reports that the relay process is up. It answers GET and HEAD.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte("OK"))
	}
}
