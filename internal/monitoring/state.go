package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	authSuccess atomic.Uint64
	authFailure atomic.Uint64
	authError   atomic.Uint64

	roleAllowed atomic.Uint64
	roleDenied  atomic.Uint64
	roleError   atomic.Uint64

	activeSessions  atomic.Int64
	sessionsRevoked atomic.Uint64
	sessionsExpired atomic.Uint64

	signupsMailed   atomic.Uint64
	signupsExisting atomic.Uint64
	signupsRejected atomic.Uint64

	resetsRequested atomic.Uint64
	resetsCompleted atomic.Uint64
	resetsFailed    atomic.Uint64

	emailDelivered   atomic.Uint64
	emailFailed      atomic.Uint64
	emailLastFailure atomic.Value // *FailureRecord

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	store := &statStore{}
	store.emailLastFailure.Store((*FailureRecord)(nil))
	return store
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		job := key.(string)
		stats := value.(*maintenanceStats)
		summaries = append(summaries, stats.snapshot(job))
		return true
	})
	return summaries
}

func (s *statStore) summary() Summary {
	lastFailure, _ := s.emailLastFailure.Load().(*FailureRecord)

	return Summary{
		GeneratedAt: time.Now(),
		Auth: AuthSummary{
			Success: s.authSuccess.Load(),
			Failure: s.authFailure.Load(),
			Error:   s.authError.Load(),
		},
		Roles: RoleSummary{
			Allowed: s.roleAllowed.Load(),
			Denied:  s.roleDenied.Load(),
			Error:   s.roleError.Load(),
		},
		Sessions: SessionSummary{
			Active:  s.activeSessions.Load(),
			Revoked: s.sessionsRevoked.Load(),
			Expired: s.sessionsExpired.Load(),
		},
		Accounts: AccountSummary{
			SignUpsMailed:   s.signupsMailed.Load(),
			SignUpsExisting: s.signupsExisting.Load(),
			SignUpsRejected: s.signupsRejected.Load(),
			ResetsRequested: s.resetsRequested.Load(),
			ResetsCompleted: s.resetsCompleted.Load(),
			ResetsFailed:    s.resetsFailed.Load(),
		},
		Email: EmailSummary{
			Delivered:   s.emailDelivered.Load(),
			Failed:      s.emailFailed.Load(),
			LastFailure: lastFailure,
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) recordAuth(result string) {
	switch result {
	case "success":
		s.authSuccess.Add(1)
	case "failure":
		s.authFailure.Add(1)
	default:
		s.authError.Add(1)
	}
}

func (s *statStore) recordRole(result string) {
	switch result {
	case "allowed":
		s.roleAllowed.Add(1)
	case "denied":
		s.roleDenied.Add(1)
	default:
		s.roleError.Add(1)
	}
}

func (s *statStore) adjustActiveSessions(delta int64) {
	newValue := s.activeSessions.Add(delta)
	if newValue < 0 {
		s.activeSessions.Store(0)
	}
}

func (s *statStore) recordSessionEnd(reason string, count uint64) {
	switch reason {
	case "expired":
		s.sessionsExpired.Add(count)
	default:
		s.sessionsRevoked.Add(count)
	}
}

func (s *statStore) recordSignUp(result string) {
	switch result {
	case "registered":
		s.signupsMailed.Add(1)
	case "already_registered":
		s.signupsExisting.Add(1)
	default:
		s.signupsRejected.Add(1)
	}
}

func (s *statStore) recordReset(stage, result string) {
	switch {
	case stage == "issue" && result == "success":
		s.resetsRequested.Add(1)
	case stage == "update" && result == "success":
		s.resetsCompleted.Add(1)
	case result != "success":
		s.resetsFailed.Add(1)
	}
}

func (s *statStore) recordEmail(kind, result, message string) {
	if result == "success" {
		s.emailDelivered.Add(1)
		return
	}
	s.emailFailed.Add(1)
	record := FailureRecord{
		Kind:     kind,
		Message:  message,
		Occurred: time.Now(),
	}
	s.emailLastFailure.Store(&record)
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	value, ok := s.maintenance.Load(job)
	if ok {
		return value.(*maintenanceStats)
	}
	stats := &maintenanceStats{}
	actual, _ := s.maintenance.LoadOrStore(job, stats)
	return actual.(*maintenanceStats)
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	consecutiveFailures  atomic.Uint64
	totalRuns            atomic.Uint64
	lastSuccessfulRun    atomic.Int64
	consecutiveSuccesses atomic.Uint64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)
	lastRun := time.Unix(0, m.lastRun.Load())
	lastSuccess := time.Unix(0, m.lastSuccessfulRun.Load())

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           lastRun,
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       lastSuccess,
		TotalRuns:           m.totalRuns.Load(),
	}
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	switch result {
	case "success":
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
	default:
		m.consecutiveFailures.Add(1)
		m.consecutiveSuccesses.Store(0)
	}
}
