package netcheck

import (
	"context"
	"fmt"
	"net"
	"time"

	"dairy-billing/internal/apperr"
)

// Checker reports whether the internet is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// TCPProbe dials a well known address (a public DNS server by default).
type TCPProbe struct {
	Address string
	Timeout time.Duration
}

func NewTCPProbe(address string, timeout time.Duration) *TCPProbe {
	if address == "" {
		address = "8.8.8.8:53"
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TCPProbe{Address: address, Timeout: timeout}
}

// Check returns an error wrapping apperr.ErrConnectivity when the dial fails.
func (p *TCPProbe) Check(ctx context.Context) error {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrConnectivity, err)
	}
	conn.Close()
	return nil
}
