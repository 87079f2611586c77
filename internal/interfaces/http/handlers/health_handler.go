package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthChecker reports the health of one infrastructure dependency.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to the HealthChecker interface.
type CheckerFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) error
}

func (c CheckerFunc) Name() string                    { return c.CheckerName }
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	startAt  time.Time
}

func NewHealthHandler(version string, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
	}
}

// Liveness handles GET /healthz. It confirms the process is serving without
// touching any dependency.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// ComponentStatus is one dependency's contribution to the readiness report.
type ComponentStatus struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// ReadinessResponse is the readiness probe body.
type ReadinessResponse struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components"`
}

const checkTimeout = 5 * time.Second

// Readiness handles GET /readyz. Dependencies are probed concurrently; any
// failure returns 503 so the instance is rotated out of the pool.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	components := make([]ComponentStatus, len(h.checkers))
	var wg sync.WaitGroup
	for i, checker := range h.checkers {
		wg.Add(1)
		go func(i int, checker HealthChecker) {
			defer wg.Done()
			start := time.Now()
			err := checker.Check(ctx)
			components[i] = ComponentStatus{
				Name:      checker.Name(),
				Healthy:   err == nil,
				LatencyMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				components[i].Error = err.Error()
			}
		}(i, checker)
	}
	wg.Wait()

	resp := ReadinessResponse{Status: "ready", Components: components}
	status := http.StatusOK
	for _, c := range components {
		if !c.Healthy {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, status, resp)
}
