// Package checks provides the readiness probes wired into the health
// endpoints at bootstrap.
package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database probes the SQL connection with a bounded ping.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	timeout = timeoutOrDefault(timeout, defaultDatabaseTimeout)

	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  "database not configured",
				Duration: time.Since(start),
			}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}
		return up(start)
	})
}

func up(start time.Time) monitoring.ProbeResult {
	return monitoring.ProbeResult{
		Status:   monitoring.StatusUp,
		Duration: time.Since(start),
	}
}

func timeoutOrDefault(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
