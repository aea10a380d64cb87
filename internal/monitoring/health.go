package monitoring

import (
	"context"
	"errors"
	"time"
)

// ProbeStatus is the three-valued outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// ProbeResult is the outcome of probing one dependency.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results for one evaluation. Success is
// false as soon as any probe is below StatusUp.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

// Check is a named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck builds a check. A nil probe function reports down rather
// than panicking at evaluation time.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Component: name, Status: StatusDown, Details: "probe missing"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager holds the registered liveness and readiness probes.
// Registration happens during bootstrap; evaluation is read-only, so no
// locking is needed.
type HealthManager struct {
	livenessChecks  []Check
	readinessChecks []Check
}

func NewHealthManager() *HealthManager {
	return &HealthManager{}
}

// RegisterLiveness appends a liveness probe. Unnamed checks are dropped.
func (m *HealthManager) RegisterLiveness(check Check) {
	if check.Name != "" {
		m.livenessChecks = append(m.livenessChecks, check)
	}
}

// RegisterReadiness appends a readiness probe. Unnamed checks are dropped.
func (m *HealthManager) RegisterReadiness(check Check) {
	if check.Name != "" {
		m.readinessChecks = append(m.readinessChecks, check)
	}
}

// EvaluateLiveness runs every registered liveness probe.
func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, m.livenessChecks)
}

// EvaluateReadiness runs every registered readiness probe.
func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, m.readinessChecks)
}

func (m *HealthManager) evaluate(ctx context.Context, checks []Check) HealthReport {
	results := make([]ProbeResult, 0, len(checks))
	for _, probe := range checks {
		results = append(results, runCheck(ctx, probe))
	}
	return reportFor(results)
}

func reportFor(results []ProbeResult) HealthReport {
	status := StatusUp
	for _, r := range results {
		switch r.Status {
		case StatusDown:
			status = StatusDown
		case StatusDegraded:
			if status != StatusDown {
				status = StatusDegraded
			}
		}
	}
	return HealthReport{
		Success: status == StatusUp,
		Status:  status,
		Checks:  results,
	}
}

// runCheck executes one probe, recovering panics into a down result so a
// misbehaving probe cannot take the health endpoint with it.
func runCheck(ctx context.Context, check Check) ProbeResult {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	var (
		result   ProbeResult
		panicked bool
	)

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		panicked = true
		details := "probe panicked"
		switch v := rec.(type) {
		case string:
			details = v
		case error:
			details = v.Error()
		}
		result = ProbeResult{
			Status:   StatusDown,
			Details:  details,
			Duration: time.Since(start),
		}
	}()

	result = check.Run(ctx)

	if result.Status == "" {
		result.Status = StatusDown
	}
	if !panicked && result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	result.Component = check.Name
	return result
}

// MergeReports folds liveness and readiness results into one payload.
func MergeReports(live, ready HealthReport) HealthReport {
	merged := make([]ProbeResult, 0, len(live.Checks)+len(ready.Checks))
	merged = append(merged, live.Checks...)
	merged = append(merged, ready.Checks...)
	return reportFor(merged)
}

// ResultFromError maps an error to a probe result. Timeouts and
// cancellations count as degraded rather than down.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	if duration < 0 {
		duration = 0
	}
	if err == nil {
		return ProbeResult{Component: component, Status: StatusUp, Duration: duration}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}

	return ProbeResult{
		Component: component,
		Status:    status,
		Details:   err.Error(),
		Duration:  duration,
	}
}
