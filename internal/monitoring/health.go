package monitoring

import (
	"context"
	"sync"
	"time"
)

// ComponentChecker checks one dependency
type ComponentChecker interface {
	Check(ctx context.Context) error
	Name() string
}

// CheckFunc adapts a function to ComponentChecker
type CheckFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
func (c CheckFunc) Name() string                    { return c.ComponentName }

type HealthStatus struct {
	Status     string                      `json:"status"` // "healthy", "degraded"
	Service    string                      `json:"service"`
	Timestamp  time.Time                   `json:"timestamp"`
	Uptime     string                      `json:"uptime"`
	Components map[string]*ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status   string `json:"status"` // "healthy", "unhealthy"
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// HealthChecker runs registered component checks. A failing component
// degrades the service but never makes it unhealthy: analyses still run
// without the cache store.
type HealthChecker struct {
	service   string
	timeout   time.Duration
	startTime time.Time
	checkers  []ComponentChecker
	mutex     sync.RWMutex
}

func NewHealthChecker(service string, timeout time.Duration) *HealthChecker {
	return &HealthChecker{
		service:   service,
		timeout:   timeout,
		startTime: time.Now(),
	}
}

func (h *HealthChecker) RegisterCheck(checker ComponentChecker) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkers = append(h.checkers, checker)
}

func (h *HealthChecker) CheckHealth(ctx context.Context) *HealthStatus {
	h.mutex.RLock()
	checkers := append([]ComponentChecker(nil), h.checkers...)
	h.mutex.RUnlock()

	status := &HealthStatus{
		Status:     "healthy",
		Service:    h.service,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Components: make(map[string]*ComponentHealth, len(checkers)),
	}

	for _, checker := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		start := time.Now()
		err := checker.Check(checkCtx)
		cancel()

		component := &ComponentHealth{
			Status:   "healthy",
			Duration: time.Since(start).String(),
		}
		if err != nil {
			component.Status = "unhealthy"
			component.Error = err.Error()
			status.Status = "degraded"
		}
		status.Components[checker.Name()] = component
	}

	return status
}
