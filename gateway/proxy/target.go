package proxy

import (
	"net"
	"strconv"
	"strings"
)

// Target is the host and port a connection is relayed to
type Target struct {
	Host string
	Port int
}

// String returns host:port, bracketing IPv6 literals
func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ParseTarget parses host[:port]. defaultPort is used when the port is omitted;
// a non-positive defaultPort makes the port mandatory.
func ParseTarget(s string, defaultPort int) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, badRequest("empty target")
	}

	host, portStr, hasPort, err := splitTarget(s)
	if err != nil {
		return Target{}, err
	}

	if host == "" {
		return Target{}, badRequest("missing host in %q", s)
	}
	if strings.ContainsAny(host, " \t\r\n/\\@") {
		return Target{}, badRequest("invalid host %q", host)
	}

	if !hasPort {
		if defaultPort <= 0 {
			return Target{}, badRequest("missing port in %q", s)
		}
		return Target{Host: host, Port: defaultPort}, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Target{}, badRequest("invalid port %q", portStr)
	}
	if port < 1 || port > 65535 {
		return Target{}, badRequest("port %d out of range", port)
	}

	return Target{Host: host, Port: port}, nil
}

func splitTarget(s string) (host, port string, hasPort bool, err error) {
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return "", "", false, badRequest("unterminated IPv6 literal in %q", s)
		}
		host = s[1:end]
		if net.ParseIP(host) == nil {
			return "", "", false, badRequest("invalid IPv6 literal %q", host)
		}
		rest := s[end+1:]
		if rest == "" {
			return host, "", false, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", "", false, badRequest("unexpected %q after IPv6 literal", rest)
		}
		return host, rest[1:], true, nil
	}

	switch strings.Count(s, ":") {
	case 0:
		return s, "", false, nil
	case 1:
		i := strings.LastIndex(s, ":")
		return s[:i], s[i+1:], true, nil
	default:
		// bare IPv6 literal without a port
		if net.ParseIP(s) != nil {
			return s, "", false, nil
		}
		return "", "", false, badRequest("too many colons in %q", s)
	}
}
