// Package monitoring runs the liveness and readiness probes behind /health
// and tracks the outcome of background maintenance jobs.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saudema/saudema/pkg/metrics"
)

// DefaultProbeTimeout bounds a probe that ignores its own deadline.
const DefaultProbeTimeout = 5 * time.Second

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

func (s ProbeStatus) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

func (s ProbeStatus) gaugeValue() float64 {
	switch s {
	case StatusUp:
		return 1
	case StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// Worst returns the more severe of a and b. Unknown statuses count as down.
func Worst(a, b ProbeStatus) ProbeStatus {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results for a liveness or readiness evaluation.
type HealthReport struct {
	Success   bool          `json:"success"`
	Status    ProbeStatus   `json:"status"`
	CheckedAt time.Time     `json:"checked_at"`
	Checks    []ProbeResult `json:"checks"`
}

// Check is a named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager keeps the probes served by /health, /health/live and
// /health/ready. Registering a name twice replaces the earlier probe.
type HealthManager struct {
	mu        sync.RWMutex
	liveness  []Check
	readiness []Check
	timeout   time.Duration
	now       func() time.Time
}

// HealthOption tunes a HealthManager.
type HealthOption func(*HealthManager)

// WithProbeTimeout caps the time a single probe may take.
func WithProbeTimeout(timeout time.Duration) HealthOption {
	return func(m *HealthManager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

func NewHealthManager(opts ...HealthOption) *HealthManager {
	m := &HealthManager{timeout: DefaultProbeTimeout, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *HealthManager) RegisterLiveness(check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liveness = register(m.liveness, check)
}

func (m *HealthManager) RegisterReadiness(check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readiness = register(m.readiness, check)
}

func register(checks []Check, check Check) []Check {
	if check.Name == "" || check.Run == nil {
		return checks
	}
	for i := range checks {
		if checks[i].Name == check.Name {
			checks[i] = check
			return checks
		}
	}
	return append(checks, check)
}

func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.liveness...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.readiness...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

// Evaluate runs liveness probes followed by readiness probes.
func (m *HealthManager) Evaluate(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := make([]Check, 0, len(m.liveness)+len(m.readiness))
	checks = append(checks, m.liveness...)
	checks = append(checks, m.readiness...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

func (m *HealthManager) evaluate(ctx context.Context, checks []Check) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]ProbeResult, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = m.runCheck(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	status := StatusUp
	for _, result := range results {
		status = Worst(status, result.Status)
		metrics.HealthProbeStatus.WithLabelValues(result.Component).Set(result.Status.gaugeValue())
	}

	return HealthReport{
		Success:   status == StatusUp,
		Status:    status,
		CheckedAt: m.now().UTC(),
		Checks:    results,
	}
}

// runCheck runs one probe under the manager timeout. A probe that does not
// return in time is reported degraded and left to finish in the background.
func (m *HealthManager) runCheck(ctx context.Context, check Check) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan ProbeResult, 1)
	go func() {
		done <- safeRun(ctx, check)
	}()

	var result ProbeResult
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ResultFromError(check.Name, fmt.Errorf("probe timed out: %w", ctx.Err()), 0)
	}

	result.Component = check.Name
	if result.Status == "" {
		result.Status = StatusDown
	}
	if result.Duration <= 0 {
		result.Duration = time.Since(start)
	}
	return result
}

func safeRun(ctx context.Context, check Check) (result ProbeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			details := "panic recovered"
			switch v := rec.(type) {
			case string:
				details = v
			case error:
				details = v.Error()
			}
			result = ProbeResult{Status: StatusDown, Details: details}
		}
	}()
	return check.Run(ctx)
}

// HTTPStatus maps a report to the status code served by health endpoints.
// Degraded dependencies still answer 200 so the instance stays in rotation.
func (r HealthReport) HTTPStatus() int {
	if r.Status == StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// ResultFromError maps err onto a probe result. Deadline and cancellation
// errors mean the dependency is slow rather than gone, so they degrade.
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
