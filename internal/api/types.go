package api

import "time"

// StatsResponse is the snapshot served by GET /api/stats
type StatsResponse struct {
	StartedAt           time.Time `json:"started_at"`
	UptimeSeconds       float64   `json:"uptime_seconds"`
	ConnectionsHandled  uint64    `json:"connections_handled"`
	ConnectionsActive   int64     `json:"connections_active"`
	ConnectionsRejected uint64    `json:"connections_rejected"`
	ConnectionsFailed   uint64    `json:"connections_failed"`
	BytesUpstream       uint64    `json:"bytes_upstream"`
	BytesDownstream     uint64    `json:"bytes_downstream"`
	BytesTransferred    uint64    `json:"bytes_transferred"`
	StatusRequests      uint64    `json:"status_requests"`
}

// ConnectionInfo describes one relayed connection as served by GET /api/connections
type ConnectionInfo struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	RemoteAddr string    `json:"remote_addr"`
	Target     string    `json:"target,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	BytesUp    uint64    `json:"bytes_up"`
	BytesDown  uint64    `json:"bytes_down"`
}

// ConnectionsResponse is the body of GET /api/connections
type ConnectionsResponse struct {
	Count       int              `json:"count"`
	Connections []ConnectionInfo `json:"connections"`
}
