package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CheckFunc is a function that performs a health check for a component.
// It returns nil if the component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// CheckResult represents the result of a single health check.
type CheckResult struct {
	// Status is the health status: "ok" or "unhealthy"
	Status string `json:"status"`

	// Message provides additional context (usually for unhealthy status)
	Message string `json:"message,omitempty"`

	// Duration is how long the check took
	Duration time.Duration `json:"duration_ms,omitempty"`

	// Optional marks checks whose failure degrades but does not fail readiness
	Optional bool `json:"optional,omitempty"`
}

// Healthy reports whether the check passed.
func (r CheckResult) Healthy() bool {
	return r.Status == StatusOK
}

// HealthStatus represents the overall health status of the system.
type HealthStatus struct {
	// Status is the overall status: "ok", "ready", "degraded", "unhealthy"
	Status string `json:"status"`

	// Checks contains the status of individual components (for readiness)
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Timestamp is when the health check was performed
	Timestamp time.Time `json:"timestamp"`
}

// Status values.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

type registration struct {
	check    CheckFunc
	optional bool
}

// Checker manages health checks for system components.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]registration

	// Timeout for individual checks
	checkTimeout time.Duration
}

var (
	// ErrCheckTimeout is returned when a health check times out
	ErrCheckTimeout = errors.New("health check timeout")

	// ErrUnknownCheck is returned when running a check that was never registered
	ErrUnknownCheck = errors.New("unknown health check")
)

// New creates a new health checker with the specified check timeout.
// If timeout is 0, defaults to 5 seconds per check.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}

	return &Checker{
		checks:       make(map[string]registration),
		checkTimeout: checkTimeout,
	}
}

// Timeout returns the per-check timeout.
func (c *Checker) Timeout() time.Duration {
	return c.checkTimeout
}

// RegisterCheck registers a required health check for a named component.
// A failing required check makes the system unhealthy.
// If a check with the same name already exists, it will be replaced.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.register(name, check, false)
}

// RegisterOptionalCheck registers a check whose failure only degrades
// readiness. The shared store is registered this way: the pipeline keeps
// collecting locally while it is down.
func (c *Checker) RegisterOptionalCheck(name string, check CheckFunc) {
	c.register(name, check, true)
}

func (c *Checker) register(name string, check CheckFunc, optional bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = registration{check: check, optional: optional}
}

// UnregisterCheck removes a health check for a named component.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.checks, name)
}

// Run executes a single named check with the checker's timeout.
func (c *Checker) Run(ctx context.Context, name string) (CheckResult, error) {
	c.mu.RLock()
	reg, ok := c.checks[name]
	c.mu.RUnlock()

	if !ok {
		return CheckResult{}, fmt.Errorf("%w: %s", ErrUnknownCheck, name)
	}

	result := c.runCheck(ctx, reg.check)
	result.Optional = reg.optional
	if !result.Healthy() {
		if result.Message == ErrCheckTimeout.Error() {
			return result, ErrCheckTimeout
		}
		return result, errors.New(result.Message)
	}
	return result, nil
}

// CheckLiveness performs a simple liveness check.
// It returns a healthy status if the process is running.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
	}
}

// CheckReadiness performs readiness checks on all registered components.
// A failing optional check yields "degraded", a failing required check
// yields "unhealthy".
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		checks[name] = reg
	}
	c.mu.RUnlock()

	if len(checks) == 0 {
		return HealthStatus{
			Status:    StatusReady,
			Checks:    make(map[string]CheckResult),
			Timestamp: time.Now(),
		}
	}

	// Run all checks concurrently
	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, reg := range checks {
		wg.Add(1)
		go func(name string, reg registration) {
			defer wg.Done()

			result := c.runCheck(ctx, reg.check)
			result.Optional = reg.optional

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}(name, reg)
	}

	wg.Wait()

	status := StatusReady
	for _, result := range results {
		if result.Healthy() {
			continue
		}
		if !result.Optional {
			status = StatusUnhealthy
			break
		}
		status = StatusDegraded
	}

	return HealthStatus{
		Status:    status,
		Checks:    results,
		Timestamp: time.Now(),
	}
}

// runCheck executes a single health check with timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()

	// Run check in goroutine to support timeout
	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	select {
	case err := <-errChan:
		duration := time.Since(start)
		if err != nil {
			return CheckResult{
				Status:   StatusUnhealthy,
				Message:  err.Error(),
				Duration: duration,
			}
		}
		return CheckResult{
			Status:   StatusOK,
			Duration: duration,
		}

	case <-checkCtx.Done():
		return CheckResult{
			Status:   StatusUnhealthy,
			Message:  ErrCheckTimeout.Error(),
			Duration: time.Since(start),
		}
	}
}

// ListChecks returns the sorted names of all registered health checks.
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

// CheckCount returns the number of registered health checks.
func (c *Checker) CheckCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.checks)
}
