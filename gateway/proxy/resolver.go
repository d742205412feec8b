package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienstroheker/RelayGate/internal/logging"
)

// DefaultHeaderTimeout bounds how long a client may take to send its request head
const DefaultHeaderTimeout = 10 * time.Second

// Resolution is the outcome of resolving an inbound connection
type Resolution struct {
	Target Target

	// Conn is the inbound stream to relay from. It replays any bytes read
	// past the request head. For plain HTTP requests it yields the rewritten
	// request head first, so the head is relayed like any other chunk.
	Conn net.Conn

	// Reply tells the client how dialing the target went. It is nil when the
	// inbound protocol has no reply.
	Reply func(dialErr error) error
}

// Resolver determines the target of an inbound connection
type Resolver interface {
	Resolve(ctx context.Context, conn net.Conn) (*Resolution, error)
}

// StaticResolver relays every connection to one fixed target
type StaticResolver struct {
	Target Target
}

// NewStaticResolver parses target (host:port) into a StaticResolver
func NewStaticResolver(target string) (*StaticResolver, error) {
	t, err := ParseTarget(target, 0)
	if err != nil {
		return nil, err
	}
	return &StaticResolver{Target: t}, nil
}

// Resolve returns the fixed target without reading from conn
func (r *StaticResolver) Resolve(_ context.Context, conn net.Conn) (*Resolution, error) {
	return &Resolution{Target: r.Target, Conn: conn}, nil
}

// ConnectResolver reads an HTTP proxy request (CONNECT or absolute-form) from
// the inbound stream and relays to the host it names
type ConnectResolver struct {
	// HeaderTimeout bounds reading the request head (default 10s)
	HeaderTimeout time.Duration

	// Username and Password enable Basic proxy authentication when either is set
	Username string
	Password string

	Logger *logging.Logger
}

// Resolve reads one request head from conn. Malformed requests get a 400
// reply and a *BadRequestError; failed authentication gets a 407 and ErrProxyAuth.
// Cancelling ctx abandons the read and returns the context error with no reply.
func (r *ConnectResolver) Resolve(ctx context.Context, conn net.Conn) (*Resolution, error) {
	timeout := r.HeaderTimeout
	if timeout <= 0 {
		timeout = DefaultHeaderTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set header deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if !stop() {
		return nil, fmt.Errorf("request head abandoned: %w", ctx.Err())
	}
	if err != nil {
		if !errors.Is(err, io.EOF) {
			_ = writeStatus(conn, http.StatusBadRequest)
		}
		return nil, &BadRequestError{Reason: "malformed request", Err: err}
	}

	_ = conn.SetReadDeadline(time.Time{})

	if !r.authorized(req) {
		_ = writeStatus(conn, http.StatusProxyAuthRequired)
		if r.Logger != nil {
			r.Logger.Warn("Proxy authentication failed",
				logging.String("remote_addr", conn.RemoteAddr().String()))
		}
		return nil, ErrProxyAuth
	}

	if req.Method == http.MethodConnect {
		target, err := ParseTarget(req.RequestURI, 443)
		if err != nil {
			_ = writeStatus(conn, http.StatusBadRequest)
			return nil, err
		}
		return &Resolution{
			Target: target,
			Conn:   wrapBuffered(conn, br),
			Reply: func(dialErr error) error {
				if dialErr != nil {
					return writeStatus(conn, dialFailureStatus(dialErr))
				}
				_, err := io.WriteString(conn, "HTTP/1.1 200 Connection Established\r\n\r\n")
				return err
			},
		}, nil
	}

	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	if host == "" {
		_ = writeStatus(conn, http.StatusBadRequest)
		return nil, badRequest("missing host in %s request", req.Method)
	}

	defaultPort := 80
	if strings.EqualFold(req.URL.Scheme, "https") {
		defaultPort = 443
	}
	target, err := ParseTarget(host, defaultPort)
	if err != nil {
		_ = writeStatus(conn, http.StatusBadRequest)
		return nil, err
	}

	return &Resolution{
		Target: target,
		Conn:   singleRequestConn(conn, br, req, host),
		Reply: func(dialErr error) error {
			if dialErr != nil {
				return writeStatus(conn, dialFailureStatus(dialErr))
			}
			return nil
		},
	}, nil
}

func (r *ConnectResolver) authorized(req *http.Request) bool {
	if r.Username == "" && r.Password == "" {
		return true
	}

	scheme, encoded, ok := strings.Cut(req.Header.Get("Proxy-Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	return ok && user == r.Username && pass == r.Password
}

// singleRequestConn relays exactly one plain HTTP request: the rewritten head,
// then the body. Anything the client sends after that body, such as pipelined
// requests, is read and discarded until the relay ends. The target is told to
// close after its response.
func singleRequestConn(conn net.Conn, br *bufio.Reader, req *http.Request, host string) net.Conn {
	head := originFormHead(req, host)

	var body io.Reader = http.NoBody
	if req.Body != nil {
		body = req.Body
	}
	if len(req.TransferEncoding) > 0 {
		body = &chunkedBody{r: body}
	}

	return &bufferedConn{
		Conn: conn,
		r:    io.MultiReader(bytes.NewReader(head), body, discardReader{r: br}),
	}
}

// originFormHead renders the request head for the target: origin-form
// request line, hop-by-hop and proxy headers removed, one request per connection
func originFormHead(req *http.Request, host string) []byte {
	removeProxyHeaders(req)
	req.Header.Del("Host")
	req.Header.Set("Connection", "close")
	if len(req.TransferEncoding) > 0 {
		req.Header.Set("Transfer-Encoding", strings.Join(req.TransferEncoding, ", "))
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/%d.%d\r\n", req.Method, req.URL.RequestURI(), req.ProtoMajor, req.ProtoMinor)
	fmt.Fprintf(&buf, "Host: %s\r\n", host)
	_ = req.Header.Write(&buf)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func removeProxyHeaders(req *http.Request) {
	req.Header.Del("Proxy-Connection")
	req.Header.Del("Connection")
	req.Header.Del("Keep-Alive")
	req.Header.Del("Proxy-Authenticate")
	req.Header.Del("Proxy-Authorization")
	req.Header.Del("TE")
	req.Header.Del("Trailers")
	req.Header.Del("Upgrade")
}

// dialFailureStatus maps a dial error to the status returned to the client
func dialFailureStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeStatus(w io.Writer, code int) error {
	header := http.Header{}
	header.Set("Connection", "close")
	if code == http.StatusProxyAuthRequired {
		header.Set("Proxy-Authenticate", `Basic realm="relaygate"`)
	}

	res := &http.Response{
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		StatusCode: code,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
	}
	return res.Write(w)
}

// bufferedConn reads from r instead of the conn, typically a bufio.Reader
// holding bytes read past the request head
type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func wrapBuffered(conn net.Conn, r *bufio.Reader) net.Conn {
	if r.Buffered() == 0 {
		return conn
	}
	return &bufferedConn{Conn: conn, r: r}
}

// chunkedBody re-encodes a decoded request body with chunked transfer coding,
// ending with the last-chunk and an empty trailer
type chunkedBody struct {
	r       io.Reader
	buf     []byte
	pending []byte
	done    bool
}

const maxChunk = 16 << 10

func (c *chunkedBody) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		if c.done {
			return 0, io.EOF
		}
		if c.buf == nil {
			c.buf = make([]byte, maxChunk)
		}

		n, err := c.r.Read(c.buf)
		if n > 0 {
			c.pending = fmt.Appendf(c.pending[:0], "%x\r\n", n)
			c.pending = append(c.pending, c.buf[:n]...)
			c.pending = append(c.pending, "\r\n"...)
		}
		if errors.Is(err, io.EOF) {
			c.pending = append(c.pending, "0\r\n\r\n"...)
			c.done = true
		} else if err != nil && len(c.pending) == 0 {
			return 0, err
		}
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// discardReader reads and drops everything from r. It returns only r's errors.
type discardReader struct {
	r io.Reader
}

func (d discardReader) Read(p []byte) (int, error) {
	for {
		if _, err := d.r.Read(p); err != nil {
			return 0, err
		}
	}
}
