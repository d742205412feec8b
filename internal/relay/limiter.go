package relay

import (
	"context"

	"golang.org/x/time/rate"
)

// limiter throttles one direction of a relay to a fixed number of bytes per second
type limiter struct {
	rl    *rate.Limiter
	burst int
}

// newLimiter returns nil when bytesPerSecond is not positive, meaning unlimited.
// The burst is capped at maxChunk so a single buffer never waits longer than a second.
func newLimiter(bytesPerSecond, maxChunk int) *limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := bytesPerSecond
	if maxChunk > 0 && burst > maxChunk {
		burst = maxChunk
	}
	return &limiter{
		rl:    rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst: burst,
	}
}

// wait blocks until n bytes may be sent, splitting requests larger than the burst
func (l *limiter) wait(ctx context.Context, n int) error {
	if l == nil {
		return nil
	}
	for n > 0 {
		step := n
		if step > l.burst {
			step = l.burst
		}
		if err := l.rl.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
