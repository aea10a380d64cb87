package checks

import (
	"context"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/monitoring"
)

const defaultMaintenanceMaxAge = 6 * time.Hour

// Maintenance inspects the recorded cleanup-job runs. A job that keeps
// failing marks the probe down; one that has not run inside maxAge
// (default 6h) only degrades it.
func Maintenance(maxAge time.Duration) monitoring.Check {
	maxAge = timeoutOrDefault(maxAge, defaultMaintenanceMaxAge)

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		jobs := monitoring.Snapshot().Maintenance.Jobs

		if len(jobs) == 0 {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "no maintenance jobs registered",
				Duration: time.Since(start),
			}
		}

		status := monitoring.StatusUp
		var notes []string
		now := time.Now()

		for _, job := range jobs {
			switch {
			case job.TotalRuns == 0:
				notes = append(notes, job.Job+": pending first run")
			case job.ConsecutiveFailures > 0:
				status = worstStatus(status, monitoring.StatusDown)
				notes = append(notes, job.Job+": consecutive failures")
			case !job.LastRunAt.IsZero() && now.Sub(job.LastRunAt) > maxAge:
				status = worstStatus(status, monitoring.StatusDegraded)
				notes = append(notes, job.Job+": stale run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{
			Status:   status,
			Details:  strings.Join(notes, "; "),
			Duration: time.Since(start),
		}
	})
}

func worstStatus(current, candidate monitoring.ProbeStatus) monitoring.ProbeStatus {
	if current == monitoring.StatusDown || candidate == monitoring.StatusDown {
		return monitoring.StatusDown
	}
	if current == monitoring.StatusDegraded || candidate == monitoring.StatusDegraded {
		return monitoring.StatusDegraded
	}
	return monitoring.StatusUp
}
