// Package stats holds the process-wide relay counters.
//
// One Stats value is created at startup and handed to every component that
// records or reports activity. All updates are atomic; readers only ever see
// a Snapshot copy.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/julienstroheker/RelayGate/internal/api"
)

// Stats tracks relay activity
type Stats struct {
	startedAt time.Time

	handled  atomic.Uint64
	active   atomic.Int64
	rejected atomic.Uint64
	failed   atomic.Uint64

	bytesUp   atomic.Uint64
	bytesDown atomic.Uint64

	statusRequests atomic.Uint64
}

// New creates a Stats whose uptime starts now
func New() *Stats {
	return &Stats{startedAt: time.Now()}
}

// ConnectionOpened records an accepted connection. It returns a func that
// must be called once when the connection is fully released.
func (s *Stats) ConnectionOpened() (done func()) {
	s.handled.Add(1)
	s.active.Add(1)

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			s.active.Add(-1)
		}
	}
}

// ConnectionRejected records a connection refused because of a bad request
func (s *Stats) ConnectionRejected() {
	s.rejected.Add(1)
}

// ConnectionFailed records a connection torn down by a dial or relay error
func (s *Stats) ConnectionFailed() {
	s.failed.Add(1)
}

// AddUpstream records bytes forwarded from the inbound side to the target
func (s *Stats) AddUpstream(n int) {
	if n > 0 {
		s.bytesUp.Add(uint64(n))
	}
}

// AddDownstream records bytes forwarded from the target back to the inbound side
func (s *Stats) AddDownstream(n int) {
	if n > 0 {
		s.bytesDown.Add(uint64(n))
	}
}

// StatusRequest records one request served by the status API
func (s *Stats) StatusRequest() {
	s.statusRequests.Add(1)
}

// Uptime returns the time since the Stats was created
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Snapshot returns a point-in-time copy of all counters
func (s *Stats) Snapshot() api.StatsResponse {
	up := s.bytesUp.Load()
	down := s.bytesDown.Load()

	return api.StatsResponse{
		StartedAt:           s.startedAt.UTC(),
		UptimeSeconds:       s.Uptime().Seconds(),
		ConnectionsHandled:  s.handled.Load(),
		ConnectionsActive:   s.active.Load(),
		ConnectionsRejected: s.rejected.Load(),
		ConnectionsFailed:   s.failed.Load(),
		BytesUpstream:       up,
		BytesDownstream:     down,
		BytesTransferred:    up + down,
		StatusRequests:      s.statusRequests.Load(),
	}
}
