package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/julienstroheker/RelayGate/internal/logging"
)

// ErrIdleTimeout is wrapped in a RelayIOError when no data moved for Options.IdleTimeout
var ErrIdleTimeout = errors.New("relay idle timeout")

// errEndOfStream stops the group after a clean EOF; Pipe reports it as success
var errEndOfStream = errors.New("end of stream")

// errTornDown is returned by armRead once the relay has been expired
var errTornDown = errors.New("relay torn down")

// RelayIOError reports a read, write, or hook failure that ended one relay
type RelayIOError struct {
	Direction Direction
	Op        string
	Err       error
}

func (e *RelayIOError) Error() string {
	return fmt.Sprintf("relay %s %s: %v", e.Direction, e.Op, e.Err)
}

func (e *RelayIOError) Unwrap() error {
	return e.Err
}

// Options configures a relay
type Options struct {
	// BufferSize is the maximum chunk read per direction (default 32 KiB)
	BufferSize int

	// IdleTimeout ends the relay when neither direction moves data for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// Hook inspects or transforms each chunk; nil means Identity
	Hook Hook

	// RateLimit caps each direction in bytes per second; zero means unlimited
	RateLimit int

	// OnBytes is called after every successful write with the bytes written
	OnBytes func(dir Direction, n int)

	// Logger is used for debug logging (optional)
	Logger *logging.Logger
}

// Result reports how many bytes were forwarded in each direction
type Result struct {
	BytesUp   int64
	BytesDown int64
}

// Total returns the bytes forwarded in both directions
func (r *Result) Total() int64 {
	return r.BytesUp + r.BytesDown
}

// Pipe relays between inbound and outbound until one side closes, an error
// occurs, or ctx is cancelled. Both connections are closed on return.
// A clean end-of-stream or a cancelled ctx returns a nil error.
func Pipe(ctx context.Context, inbound, outbound net.Conn, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	hook := opts.Hook
	if hook == nil {
		hook = Identity
	}

	defer func() {
		_ = inbound.Close()
		_ = outbound.Close()
	}()

	g, gctx := errgroup.WithContext(ctx)

	dl := &deadlines{conns: [2]net.Conn{inbound, outbound}, idle: opts.IdleTimeout}
	dl.touch()
	stop := context.AfterFunc(gctx, dl.expire)
	defer stop()

	res := &Result{}
	pumps := []*pump{
		{
			dir:     Upstream,
			src:     inbound,
			dst:     outbound,
			count:   &res.BytesUp,
			limiter: newLimiter(opts.RateLimit, bufferSize),
		},
		{
			dir:     Downstream,
			src:     outbound,
			dst:     inbound,
			count:   &res.BytesDown,
			limiter: newLimiter(opts.RateLimit, bufferSize),
		},
	}

	for _, p := range pumps {
		p.hook = hook
		p.onBytes = opts.OnBytes
		p.deadlines = dl
		p.bufferSize = bufferSize
		g.Go(func() error {
			return p.run(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, errEndOfStream) {
		err = nil
	}

	if opts.Logger != nil {
		fields := []logging.Field{
			logging.Int64("bytes_up", atomic.LoadInt64(&res.BytesUp)),
			logging.Int64("bytes_down", atomic.LoadInt64(&res.BytesDown)),
		}
		if err != nil {
			fields = append(fields, logging.Error(err))
		}
		opts.Logger.Debug("Relay finished", fields...)
	}

	return res, err
}

// pump copies one direction of a relay
type pump struct {
	dir        Direction
	src        net.Conn
	dst        net.Conn
	hook       Hook
	limiter    *limiter
	onBytes    func(Direction, int)
	count      *int64
	deadlines  *deadlines
	bufferSize int
}

func (p *pump) run(ctx context.Context) error {
	buf := getBuf(p.bufferSize)
	defer putBuf(buf)

	for {
		if err := p.deadlines.armRead(p.src); err != nil {
			if errors.Is(err, errTornDown) {
				return nil
			}
			return p.fail(ctx, &RelayIOError{Direction: p.dir, Op: "deadline", Err: err})
		}

		n, rerr := p.src.Read(buf)
		if n > 0 {
			p.deadlines.touch()
			if err := p.forward(ctx, buf[:n]); err != nil {
				return p.fail(ctx, err)
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return errEndOfStream
			}
			if errors.Is(rerr, os.ErrDeadlineExceeded) && ctx.Err() == nil && p.deadlines.idle > 0 {
				if p.deadlines.idleFor() < p.deadlines.idle {
					// the other direction is active
					continue
				}
				return &RelayIOError{Direction: p.dir, Op: "read", Err: ErrIdleTimeout}
			}
			return p.fail(ctx, &RelayIOError{Direction: p.dir, Op: "read", Err: rerr})
		}
	}
}

// forward runs the hook, waits on the limiter, and writes the full chunk
func (p *pump) forward(ctx context.Context, chunk []byte) error {
	out, err := p.hook(p.dir, chunk)
	if err != nil {
		return &RelayIOError{Direction: p.dir, Op: "hook", Err: err}
	}
	if len(out) == 0 {
		return nil
	}

	if err := p.limiter.wait(ctx, len(out)); err != nil {
		return &RelayIOError{Direction: p.dir, Op: "limit", Err: err}
	}

	for len(out) > 0 {
		n, werr := p.dst.Write(out)
		if n > 0 {
			atomic.AddInt64(p.count, int64(n))
			if p.onBytes != nil {
				p.onBytes(p.dir, n)
			}
			out = out[n:]
		}
		if werr != nil {
			return &RelayIOError{Direction: p.dir, Op: "write", Err: werr}
		}
		if n == 0 {
			return &RelayIOError{Direction: p.dir, Op: "write", Err: io.ErrShortWrite}
		}
	}
	return nil
}

// fail drops errors that are only a consequence of the relay being torn down
func (p *pump) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// deadlines coordinates idle read deadlines with teardown so that a re-armed
// deadline can never hide an expiry set by cancellation
type deadlines struct {
	mu       sync.Mutex
	expired  bool
	conns    [2]net.Conn
	idle     time.Duration
	lastSeen atomic.Int64
}

func (d *deadlines) touch() {
	d.lastSeen.Store(time.Now().UnixNano())
}

func (d *deadlines) idleFor() time.Duration {
	return time.Since(time.Unix(0, d.lastSeen.Load()))
}

// armRead sets the next idle deadline on conn; it fails once the relay is torn down
func (d *deadlines) armRead(conn net.Conn) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.expired {
		return errTornDown
	}
	if d.idle <= 0 {
		return nil
	}
	return conn.SetReadDeadline(time.Now().Add(d.idle))
}

// expire unblocks every pending read and write on both connections
func (d *deadlines) expire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expired = true
	past := time.Unix(1, 0)
	for _, c := range d.conns {
		_ = c.SetDeadline(past)
	}
}
