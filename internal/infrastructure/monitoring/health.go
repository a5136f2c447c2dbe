package monitoring

import (
	"context"
	"sync"
	"time"
)

// Probe is a named liveness check against a dependency, typically the
// backing store.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Interval time.Duration
	Timeout  time.Duration
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker runs probes in the background and serves the last observed
// results, so the health endpoint never blocks on a slow dependency.
type HealthChecker struct {
	mu      sync.RWMutex
	probes  []Probe
	results map[string]string
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		results: make(map[string]string),
	}
}

func (h *HealthChecker) AddProbe(name string, check func(ctx context.Context) error, interval, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.probes = append(h.probes, Probe{
		Name:     name,
		Check:    check,
		Interval: interval,
		Timeout:  timeout,
	})
	h.results[name] = "unknown"
}

// Start launches one goroutine per probe. Each probe runs once immediately
// so the first status report is meaningful.
func (h *HealthChecker) Start(ctx context.Context) {
	h.mu.RLock()
	probes := make([]Probe, len(h.probes))
	copy(probes, h.probes)
	h.mu.RUnlock()

	for _, probe := range probes {
		go h.run(ctx, probe)
	}
}

func (h *HealthChecker) run(ctx context.Context, probe Probe) {
	h.execute(ctx, probe)

	ticker := time.NewTicker(probe.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.execute(ctx, probe)
		}
	}
}

func (h *HealthChecker) execute(ctx context.Context, probe Probe) {
	probeCtx, cancel := context.WithTimeout(ctx, probe.Timeout)
	err := probe.Check(probeCtx)
	cancel()

	h.mu.Lock()
	if err != nil {
		h.results[probe.Name] = err.Error()
	} else {
		h.results[probe.Name] = "healthy"
	}
	h.mu.Unlock()
}

// Status reports the most recent probe results without running anything.
func (h *HealthChecker) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(h.results)),
	}
	for name, result := range h.results {
		status.Checks[name] = result
		if result != "healthy" {
			status.Status = "unhealthy"
		}
	}
	return status
}
