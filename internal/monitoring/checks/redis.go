package checks

import (
	"context"
	"time"

	"github.com/wardenhq/warden/internal/monitoring"
)

const defaultRedisTimeout = 2 * time.Second

// RedisPinger is the minimal surface needed to probe a Redis connection.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Redis probes the configured Redis cache. A deployment without Redis
// reports up, with the reason in the details, so operators can tell a
// disabled cache apart from a broken one.
func Redis(client RedisPinger, enabled bool, timeout time.Duration) monitoring.Check {
	timeout = timeoutOrDefault(timeout, defaultRedisTimeout)

	return monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if !enabled {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "redis disabled",
				Duration: time.Since(start),
			}
		}
		if client == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "redis unavailable",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := client.Ping(probeCtx); err != nil {
			return monitoring.ResultFromError("redis", err, time.Since(start))
		}
		return up(start)
	})
}
