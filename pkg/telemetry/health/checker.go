package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Status values reported in CheckResult and HealthStatus.
const (
	StatusOK        = "ok"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
)

// DefaultCheckTimeout bounds a single check when New is given zero.
const DefaultCheckTimeout = 5 * time.Second

// CheckFunc performs a health check for a component.
// It returns nil if the component is healthy.
type CheckFunc func(ctx context.Context) error

// Pinger is implemented by anything that can verify its own connectivity,
// such as a storage backend or a database handle.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger into a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ms,omitempty"`
}

// HealthStatus is the aggregated health of the process.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Healthy reports whether the status should be served with 200.
func (s HealthStatus) Healthy() bool {
	return s.Status == StatusOK || s.Status == StatusReady
}

// ErrCheckTimeout is reported when a check does not finish within the timeout.
var ErrCheckTimeout = errors.New("health check timeout")

// Checker manages readiness checks for process dependencies.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc

	checkTimeout time.Duration
	now          func() time.Time
}

// New creates a health checker. A zero timeout uses DefaultCheckTimeout.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout <= 0 {
		checkTimeout = DefaultCheckTimeout
	}

	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
		now:          time.Now,
	}
}

// RegisterCheck registers a check for a named component, replacing any
// existing check with the same name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = check
}

// UnregisterCheck removes a named check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.checks, name)
}

// ListChecks returns the registered check names, sorted.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckLiveness reports that the process is running.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: c.now(),
	}
}

// CheckReadiness runs every registered check concurrently and aggregates
// the results. With no checks registered the process is ready.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()

			result := c.runCheck(ctx, check)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	status := StatusReady
	for _, result := range results {
		if result.Status == StatusUnhealthy {
			status = StatusDegraded
			break
		}
	}

	return HealthStatus{
		Status:    status,
		Checks:    results,
		Timestamp: c.now(),
	}
}

// runCheck executes one check, giving up after the checker timeout even if
// the check ignores its context.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()

	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return CheckResult{
				Status:   StatusUnhealthy,
				Message:  err.Error(),
				Duration: time.Since(start),
			}
		}
		return CheckResult{Status: StatusOK, Duration: time.Since(start)}

	case <-checkCtx.Done():
		return CheckResult{
			Status:   StatusUnhealthy,
			Message:  ErrCheckTimeout.Error(),
			Duration: time.Since(start),
		}
	}
}
