// Package security guards the outbound HTTP clients that carry credentials.
//
// EgressTransport refuses to dial loopback, link-local (including the
// instance metadata service at 169.254.169.254) and private ranges, so a
// misconfigured base URL or a poisoned DNS answer cannot send the tokenizer
// API key or the App IO subscription key to internal infrastructure.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const dnsTimeout = 500 * time.Millisecond

var (
	ErrBlockedAddress = errors.New("egress: destination address is blocked")
	ErrDNSTimeout     = errors.New("egress: DNS resolution timeout")
	ErrDNSFailed      = errors.New("egress: DNS resolution failed")
	ErrRedirect       = errors.New("egress: redirects are not followed")
)

// BlockedCIDRs are the ranges no credential-bearing request may reach.
var BlockedCIDRs = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"0.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedNets = mustParseCIDRs(BlockedCIDRs)

func mustParseCIDRs(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("egress: bad CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// IsBlocked reports whether ip falls in a blocked range.
func IsBlocked(ip net.IP) bool {
	for _, n := range blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for tests.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// EgressTransport is an http.RoundTripper whose dialer validates every
// resolved address before connecting.
type EgressTransport struct {
	Base     *http.Transport
	Resolver Resolver
	dialer   *net.Dialer
}

// NewEgressTransport wraps base, or a clone of http.DefaultTransport when
// base is nil, overriding its DialContext.
func NewEgressTransport(base *http.Transport) *EgressTransport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	t := &EgressTransport{
		Base:     base,
		Resolver: net.DefaultResolver,
		dialer:   &net.Dialer{Timeout: 5 * time.Second},
	}
	base.DialContext = t.dialContext
	// A proxy would be dialed instead of the validated target.
	base.Proxy = nil
	return t
}

func (t *EgressTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.Base.RoundTrip(req)
}

func (t *EgressTransport) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("egress: invalid address %q: %w", addr, err)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsBlocked(ip) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
		}
		return t.dialer.DialContext(ctx, network, addr)
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()
	ips, err := t.Resolver.LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrDNSFailed, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: host %q has no addresses", ErrDNSFailed, host)
	}

	// Every answer is checked, not just the one dialed: a mixed answer is a
	// rebinding attempt.
	for _, ip := range ips {
		if IsBlocked(ip.IP) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrBlockedAddress, ip.IP, host)
		}
	}
	return t.dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
}

// NewEgressClient returns an http.Client using EgressTransport that never
// follows redirects. Both upstream APIs answer directly, so a redirect is
// treated as an error rather than a new destination to vet.
func NewEgressClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: NewEgressTransport(nil),
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			return fmt.Errorf("%w: %s", ErrRedirect, req.URL.Redacted())
		},
	}
}
