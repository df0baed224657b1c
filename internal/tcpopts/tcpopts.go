// Package tcpopts configures the dual-stack listening socket and per-
// connection options the synchronization engine expects from its
// transport: a single listener that accepts both IPv4 and IPv6 peers, with
// SO_REUSEADDR so a restarted host can rebind immediately, and TCP_NODELAY
// on every accepted/dialed connection so small INPUT commands aren't held
// by Nagle's algorithm (spec.md §6).
package tcpopts

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenConfig returns a net.ListenConfig whose Control hook sets
// SO_REUSEADDR and clears IPV6_V6ONLY, so "tcp" / "[::]:port" accepts both
// address families on platforms that default v6-only.
func ListenConfig() *net.ListenConfig {
	return &net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sysErr error

			err := c.Control(func(fd uintptr) {
				sysErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sysErr != nil {
					return
				}
				// IPV6_V6ONLY only applies to AF_INET6 sockets; ignore the
				// error on an AF_INET listener where the option doesn't exist.
				_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
			})
			if err != nil {
				return fmt.Errorf("tcpopts: control fd: %w", err)
			}
			if sysErr != nil {
				return fmt.Errorf("tcpopts: set SO_REUSEADDR: %w", sysErr)
			}

			return nil
		},
	}
}

// Listen opens a dual-stack TCP listener on addr (e.g. ":55435").
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	ln, err := ListenConfig().Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcpopts: listen %s: %w", addr, err)
	}
	return ln, nil
}

// SetNoDelay disables Nagle's algorithm on conn if it's a *net.TCPConn.
func SetNoDelay(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(true); err != nil {
		return fmt.Errorf("tcpopts: set no delay: %w", err)
	}
	return nil
}

// Dialer returns a net.Dialer suitable for connecting to a netplay host.
func Dialer() *net.Dialer {
	return &net.Dialer{
		Control: func(network, address string, c syscall.RawConn) error {
			var sysErr error

			err := c.Control(func(fd uintptr) {
				sysErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return fmt.Errorf("tcpopts: control fd: %w", err)
			}

			_ = sysErr // best effort; some platforms reject SO_REUSEADDR pre-connect
			return nil
		},
	}
}
