package relay

import (
	"context"
	"net"

	"github.com/google/uuid"

	"github.com/julienstroheker/RelayGate/internal/logging"
)

// Sender opens sender-side rendezvous connections to a hybrid connection.
// It satisfies the relay server's outbound dialer, so a hybrid connection can
// be used as a static target.
type Sender struct {
	endpoint *Endpoint
	logger   *logging.Logger
}

// NewSender creates a sender for the endpoint
func NewSender(endpoint *Endpoint, logger *logging.Logger) (*Sender, error) {
	if err := endpoint.validate(); err != nil {
		return nil, err
	}
	return &Sender{endpoint: endpoint, logger: logger}, nil
}

// DialContext connects to the hybrid connection. network and address are
// ignored because the endpoint already names the destination.
func (s *Sender) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	header, err := s.endpoint.header(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	target := s.endpoint.url("connect", id)

	if s.logger != nil {
		s.logger.Debug("Connecting to hybrid connection",
			logging.String("hybrid_connection", s.endpoint.Name),
			logging.String("tracking_id", id))
	}

	ws, err := dial(ctx, s.endpoint.dialer(), target, header)
	if err != nil {
		return nil, err
	}
	return newWSConn(ws), nil
}
