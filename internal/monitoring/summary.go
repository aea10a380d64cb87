package monitoring

import "time"

// Summary surfaces aggregated runtime statistics for administrative dashboards.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Auth        AuthSummary        `json:"auth"`
	Roles       RoleSummary        `json:"roles"`
	Sessions    SessionSummary     `json:"sessions"`
	Accounts    AccountSummary     `json:"accounts"`
	Email       EmailSummary       `json:"email"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

type AuthSummary struct {
	Success uint64 `json:"success"`
	Failure uint64 `json:"failure"`
	Error   uint64 `json:"error"`
}

type RoleSummary struct {
	Allowed uint64 `json:"allowed"`
	Denied  uint64 `json:"denied"`
	Error   uint64 `json:"error"`
}

type SessionSummary struct {
	Active  int64  `json:"active"`
	Revoked uint64 `json:"revoked"`
	Expired uint64 `json:"expired"`
}

// AccountSummary aggregates self-service account flow outcomes.
type AccountSummary struct {
	SignUpsMailed   uint64 `json:"signups_mailed"`
	SignUpsExisting uint64 `json:"signups_existing"`
	SignUpsRejected uint64 `json:"signups_rejected"`
	ResetsRequested uint64 `json:"resets_requested"`
	ResetsCompleted uint64 `json:"resets_completed"`
	ResetsFailed    uint64 `json:"resets_failed"`
}

type FailureRecord struct {
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
	Occurred time.Time `json:"occurred_at"`
}

type EmailSummary struct {
	Delivered   uint64         `json:"delivered"`
	Failed      uint64         `json:"failed"`
	LastFailure *FailureRecord `json:"last_failure,omitempty"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := ensureModule(); module != nil && module.stats != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}
