package net

import (
	"context"
	"fmt"
	"net"

	"github.com/lcx/hopnet/metrics"
)

// Dial connects to addr, waiting at most cfg.ConnectTimeout. On success the
// connection's goroutines are running and handler.OnConnect has returned.
func Dial(ctx context.Context, addr string, cfg *NetCfg, handler ConnHandler) (Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: cfg.ConnectTimeout()}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		metrics.IncrCounterWithGroup("net", "dial_failure_total", 1)
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := tune(c, cfg); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("tune %s: %w", addr, err)
	}
	tc := newConn(c, cfg, NewCodec(), handler)
	tc.serve()
	return tc, nil
}
