package relay

import (
	"encoding/hex"

	"github.com/julienstroheker/RelayGate/internal/logging"
)

// Direction identifies which way a chunk is travelling
type Direction int

const (
	// Upstream is inbound → outbound (client to target)
	Upstream Direction = iota
	// Downstream is outbound → inbound (target to client)
	Downstream
)

// String returns the string representation
func (d Direction) String() string {
	switch d {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// Hook observes or transforms a chunk before it is forwarded.
// Returning an empty slice forwards nothing for that chunk.
// Returning an error terminates the relay for this connection pair only.
type Hook func(dir Direction, chunk []byte) ([]byte, error)

// Identity forwards every chunk unchanged
func Identity(_ Direction, chunk []byte) ([]byte, error) {
	return chunk, nil
}

// Chain composes hooks so that each receives the previous hook's output
func Chain(hooks ...Hook) Hook {
	active := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			active = append(active, h)
		}
	}

	switch len(active) {
	case 0:
		return Identity
	case 1:
		return active[0]
	}

	return func(dir Direction, chunk []byte) ([]byte, error) {
		var err error
		for _, h := range active {
			chunk, err = h(dir, chunk)
			if err != nil {
				return nil, err
			}
			if len(chunk) == 0 {
				return chunk, nil
			}
		}
		return chunk, nil
	}
}

// HexDump logs each chunk's size and a hex preview of up to preview bytes at debug level.
// It never modifies the chunk.
func HexDump(logger *logging.Logger, preview int) Hook {
	if logger == nil {
		return Identity
	}
	return func(dir Direction, chunk []byte) ([]byte, error) {
		if logger.Level() > logging.DebugLevel {
			return chunk, nil
		}
		n := len(chunk)
		if preview >= 0 && n > preview {
			n = preview
		}
		logger.Debug("Relay chunk",
			logging.String("direction", dir.String()),
			logging.Int("size", len(chunk)),
			logging.String("hex", hex.EncodeToString(chunk[:n])))
		return chunk, nil
	}
}
