// Package reach checks that a store's host answers before an archival run
// touches any data.
package reach

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout bounds a single reachability probe.
const DefaultTimeout = 3 * time.Second

// ErrUnreachable is returned when a host cannot be resolved or dialled.
var ErrUnreachable = errors.New("reach: host unreachable")

// Checker probes hosts. A "host:port" value is dialled over TCP; a bare host
// name is resolved through DNS. The zero value uses DefaultTimeout and the
// system resolver.
type Checker struct {
	Timeout  time.Duration
	Resolver *net.Resolver
	Dialer   *net.Dialer
}

// Check implements archive.HostChecker. An empty host is always reachable.
func (c Checker) Check(ctx context.Context, host string) error {
	if host == "" {
		return nil
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, _, err := net.SplitHostPort(host); err == nil {
		d := c.Dialer
		if d == nil {
			d = &net.Dialer{}
		}
		conn, err := d.DialContext(ctx, "tcp", host)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrUnreachable, host, err)
		}
		return conn.Close()
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	r := c.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnreachable, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s: no addresses", ErrUnreachable, host)
	}
	return nil
}
