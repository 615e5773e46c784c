// File: resolver/query.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package resolver

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
)

// Mode selects the resolution policy.
type Mode int

const (
	// ModeConnect races probe connects and keeps the first reachable candidate.
	ModeConnect Mode = iota
	// ModeListen keeps the first candidate a socket can be created for.
	ModeListen
)

func (m Mode) String() string {
	if m == ModeListen {
		return "listen"
	}
	return "connect"
}

// Query identifies one resolution. Mode is not part of the cache identity.
type Query struct {
	Host     string
	Service  string
	Mode     Mode
	Protocol string // "tcp" or "udp"
	Type     string // "stream" or "dgram"
}

// TCP returns a stream query for host:service.
func TCP(host, service string, mode Mode) Query {
	return Query{Host: host, Service: service, Mode: mode, Protocol: "tcp", Type: "stream"}
}

// Key is the cache identity, e.g. "tcp_stream@127.0.0.1:80".
func (q Query) Key() string {
	return q.Protocol + "_" + q.Type + "@" + net.JoinHostPort(q.Host, q.Service)
}

func (q Query) String() string { return q.Key() }

// ParseQuery parses a Key-formatted string into a connect-mode query.
func ParseQuery(s string) (Query, error) {
	kind, hostport, ok := strings.Cut(s, "@")
	if !ok {
		return Query{}, fmt.Errorf("%w: query %q lacks '@'", api.ErrInvalidArgument, s)
	}
	proto, typ, ok := strings.Cut(kind, "_")
	if !ok {
		return Query{}, fmt.Errorf("%w: query %q lacks protocol_type", api.ErrInvalidArgument, s)
	}
	host, service, err := net.SplitHostPort(hostport)
	if err != nil {
		return Query{}, fmt.Errorf("%w: %w", api.ErrInvalidArgument, err)
	}
	q := Query{Host: host, Service: service, Protocol: proto, Type: typ}
	if err := q.validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

func (q Query) validate() error {
	if _, err := q.socketType(); err != nil {
		return err
	}
	if _, err := q.protocol(); err != nil {
		return err
	}
	if q.Host == "" || q.Service == "" {
		return fmt.Errorf("%w: empty host or service", api.ErrInvalidArgument)
	}
	return nil
}

func (q Query) socketType() (int, error) {
	switch q.Type {
	case "stream", "":
		return unix.SOCK_STREAM, nil
	case "dgram":
		return unix.SOCK_DGRAM, nil
	default:
		return 0, fmt.Errorf("%w: socket type %q", api.ErrInvalidArgument, q.Type)
	}
}

func (q Query) protocol() (int, error) {
	switch q.Protocol {
	case "tcp", "":
		return unix.IPPROTO_TCP, nil
	case "udp":
		return unix.IPPROTO_UDP, nil
	default:
		return 0, fmt.Errorf("%w: protocol %q", api.ErrInvalidArgument, q.Protocol)
	}
}

func (q Query) network() string {
	if q.Protocol == "udp" {
		return "udp"
	}
	return "tcp"
}
