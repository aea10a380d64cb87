package monitoring

import (
	"strings"
	"time"
)

// RecordAuthAttempt tallies a login attempt outcome for the runtime summary.
func RecordAuthAttempt(result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.stats.recordAuth(normalizeLabel(result))
}

// RecordRoleCheck records the outcome of a role gate evaluation.
func RecordRoleCheck(result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.stats.recordRole(normalizeLabel(result))
}

// AdjustActiveSessions modifies the live session gauge by delta.
func AdjustActiveSessions(delta int64) {
	module := ensureModule()
	if module == nil {
		return
	}
	if delta == 0 {
		return
	}
	module.stats.adjustActiveSessions(delta)
}

// RecordSessionEnd tallies sessions that stopped being usable, by reason
// ("revoked" or "expired").
func RecordSessionEnd(reason string, count int64) {
	module := ensureModule()
	if module == nil {
		return
	}
	if count <= 0 {
		return
	}
	module.stats.recordSessionEnd(normalizeLabel(reason), uint64(count))
}

// RecordSignUp tallies a self sign-up outcome.
func RecordSignUp(result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.stats.recordSignUp(normalizeLabel(result))
}

// RecordPasswordReset tallies a password reset flow event by stage and result.
func RecordPasswordReset(stage, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.stats.recordReset(normalizeLabel(stage), normalizeLabel(result))
}

// RecordEmailDelivery tallies an outgoing email attempt. Failures keep the
// message around so the summary can show what last went wrong.
func RecordEmailDelivery(kind, result, message string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.stats.recordEmail(normalizeLabel(kind), normalizeLabel(result), strings.TrimSpace(message))
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	jobID := normalizeLabel(job)
	if jobID == "" {
		jobID = "unknown"
	}
	result = normalizeLabel(result)
	if result == "" {
		result = "unknown"
	}
	module.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == "success" {
		module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
	}
	stats := module.stats.maintenanceEntry(jobID)
	stats.record(result, strings.TrimSpace(message), duration)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
