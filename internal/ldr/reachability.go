package ldr

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/jdholdren/readersync/internal/reader"
)

var _ reader.Connectivity = Reachability{}

// Reachability decides whether the reader host answers on its port at all.
type Reachability struct {
	Addr    string
	Timeout time.Duration
}

// NewReachability derives the address to probe from the reader url.
func NewReachability(readerURL string, timeout time.Duration) Reachability {
	if readerURL == "" {
		readerURL = DefaultReaderURL
	}
	u, err := url.Parse(readerURL)
	if err != nil {
		return Reachability{Addr: readerURL, Timeout: timeout}
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	return Reachability{Addr: net.JoinHostPort(u.Hostname(), port), Timeout: timeout}
}

func (r Reachability) Connected(ctx context.Context) bool {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", r.Addr)
	if err != nil {
		slog.DebugContext(ctx, "reader unreachable", "addr", r.Addr, "error", err)
		return false
	}
	conn.Close()

	return true
}
