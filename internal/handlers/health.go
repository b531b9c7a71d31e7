package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	readyzProbeTimeout   = 5 * time.Second
)

// BuildInfo identifies the running binary on the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessProbe checks one downstream dependency. A nil error means ready.
type ReadinessProbe func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	build  BuildInfo
	probes map[string]ReadinessProbe
	clock  func() time.Time
}

// HealthOption configures the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches version metadata to health responses.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthProbe registers a named readiness probe.
func WithHealthProbe(name string, probe ReadinessProbe) HealthOption {
	return func(h *HealthHandlers) {
		if name == "" || probe == nil {
			return
		}
		h.probes[name] = probe
	}
}

// WithHealthClock overrides the time source, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers builds the health endpoints.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		probes: make(map[string]ReadinessProbe),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock().UTC()
	}
	return h
}

// Healthz reports liveness: the process is up and can serve JSON.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    healthStatusOK,
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeHealthJSON(w, http.StatusOK, payload)
}

// Readyz runs every registered probe and reports 503 when any dependency is
// down, so the load balancer stops routing checkouts at a broken instance.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyzProbeTimeout)
	defer cancel()

	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	now := h.clock().UTC()
	checks := make(map[string]map[string]any, len(names))
	details := make([]string, 0)
	for _, name := range names {
		start := time.Now()
		err := h.probes[name](ctx)
		check := map[string]any{
			"status":    healthStatusOK,
			"latency":   time.Since(start).String(),
			"checkedAt": now.Format(time.RFC3339),
		}
		if err != nil {
			check["status"] = healthStatusDegraded
			check["error"] = err.Error()
			details = append(details, fmt.Sprintf("%s: %s", name, err.Error()))
		}
		checks[name] = check
	}

	status := healthStatusOK
	code := http.StatusOK
	if len(details) > 0 {
		status = healthStatusDegraded
		code = http.StatusServiceUnavailable
	}

	writeHealthJSON(w, code, map[string]any{
		"status":  status,
		"checks":  checks,
		"details": details,
	})
}

func writeHealthJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
