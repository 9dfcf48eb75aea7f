package health

import (
	"context"
	"net"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a recent GC pause exceeded threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}

// Pinger is a backend client that can report its reachability, such as a
// pgx pool, the QR image cache or the search index.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck checks a backend through its Ping method.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return errors.Wrap(p.Ping(ctx), "ping")
	}
}

// DialCheck fails when none of addrs accepts a TCP connection. Used for
// brokers whose clients have no ping.
func DialCheck(addrs ...string) CheckFunc {
	return func(ctx context.Context) error {
		if len(addrs) == 0 {
			return errors.New("no addresses")
		}
		var d net.Dialer
		var lastErr error
		for _, addr := range addrs {
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err == nil {
				return conn.Close()
			}
			lastErr = err
		}
		return errors.Wrap(lastErr, "dial")
	}
}
