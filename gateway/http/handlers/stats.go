package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienstroheker/RelayGate/internal/api"
	"github.com/julienstroheker/RelayGate/internal/logging"
	"github.com/julienstroheker/RelayGate/internal/stats"
)

// NewStatsHandler serves a snapshot of the relay counters on GET and HEAD
func NewStatsHandler(s *stats.Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowRead(w, r) {
			return
		}
		writeJSON(w, r, s.Snapshot())
	}
}

// NewConnectionsHandler serves the live connections. A nil list func reports none.
func NewConnectionsHandler(list func() []api.ConnectionInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowRead(w, r) {
			return
		}

		conns := []api.ConnectionInfo{}
		if list != nil {
			if got := list(); got != nil {
				conns = got
			}
		}
		writeJSON(w, r, api.ConnectionsResponse{Count: len(conns), Connections: conns})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	// Marshal first so a failure can still change the status
	data, err := json.Marshal(v)
	if err != nil {
		logging.FromContext(r.Context()).Error("Failed to encode response", logging.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}
