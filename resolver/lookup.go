// File: resolver/lookup.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/multierr"
)

// LookupFunc turns a host and service into candidate addresses.
type LookupFunc func(ctx context.Context, network, host, service string) ([]netip.AddrPort, error)

// ErrNoAddress is returned when a lookup produced no candidate.
var ErrNoAddress = errors.New("resolver: no address")

func lookupPort(ctx context.Context, network, service string) (uint16, error) {
	if p, err := strconv.ParseUint(service, 10, 16); err == nil {
		return uint16(p), nil
	}
	p, err := net.DefaultResolver.LookupPort(ctx, network, service)
	if err != nil {
		return 0, err
	}
	return uint16(p), nil
}

func withPort(ips []netip.Addr, port uint16) []netip.AddrPort {
	out := make([]netip.AddrPort, 0, len(ips))
	for _, ip := range ips {
		out = append(out, netip.AddrPortFrom(ip.Unmap(), port))
	}
	return out
}

// SystemLookup resolves through the platform resolver.
func SystemLookup(ctx context.Context, network, host, service string) ([]netip.AddrPort, error) {
	port, err := lookupPort(ctx, network, service)
	if err != nil {
		return nil, err
	}
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	return withPort(ips, port), nil
}

// NameserverLookup queries servers directly for A and AAAA records. Servers are
// tried in order; the first one that answers decides.
func NameserverLookup(servers []string, timeout time.Duration) LookupFunc {
	client := &dns.Client{Net: "udp", Timeout: timeout}
	return func(ctx context.Context, network, host, service string) ([]netip.AddrPort, error) {
		port, err := lookupPort(ctx, network, service)
		if err != nil {
			return nil, err
		}
		var errs error
		for _, server := range servers {
			ips, err := queryServer(ctx, client, server, host)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", server, err))
				continue
			}
			return withPort(ips, port), nil
		}
		if errs == nil {
			errs = ErrNoAddress
		}
		return nil, errs
	}
}

func queryServer(ctx context.Context, client *dns.Client, server, host string) ([]netip.Addr, error) {
	var ips []netip.Addr
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.RecursionDesired = true
		r, _, err := client.ExchangeContext(ctx, m, server)
		if err != nil {
			return nil, err
		}
		if r.Rcode != dns.RcodeSuccess && r.Rcode != dns.RcodeNameError {
			return nil, fmt.Errorf("rcode %s", dns.RcodeToString[r.Rcode])
		}
		for _, rr := range r.Answer {
			switch a := rr.(type) {
			case *dns.A:
				if ip, ok := netip.AddrFromSlice(a.A); ok {
					ips = append(ips, ip.Unmap())
				}
			case *dns.AAAA:
				if ip, ok := netip.AddrFromSlice(a.AAAA); ok {
					ips = append(ips, ip)
				}
			}
		}
	}
	return ips, nil
}
