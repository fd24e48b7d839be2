package svm

import (
	"context"
	"net"
	"net/url"
	"time"

	x402 "github.com/quantaliz/solaibot-sub000"
)

// Probe reports whether the device currently has network connectivity.
// It runs before any ledger call so an offline attempt fails fast with ErrNoNetwork.
type Probe interface {
	Online(ctx context.Context) bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Online(ctx context.Context) bool { return f(ctx) }

// AlwaysOnline is a Probe that never reports an outage.
var AlwaysOnline Probe = ProbeFunc(func(context.Context) bool { return true })

// DialProbe considers the device online if a TCP connection to Address succeeds.
type DialProbe struct {
	Address string
	Timeout time.Duration
}

// NewDialProbe returns a probe that dials the host of endpoint (an RPC URL).
func NewDialProbe(endpoint string, timeout time.Duration) (*DialProbe, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return &DialProbe{Address: net.JoinHostPort(u.Hostname(), port), Timeout: timeout}, nil
}

func (p *DialProbe) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = x402.DefaultTimeouts.ConnectTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
