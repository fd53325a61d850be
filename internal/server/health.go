package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/decap-oauth/internal/instrumentation"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker serves the liveness and readiness probes of the relay.
// The relay holds no backing services, so readiness only reflects the
// process lifecycle: marked ready at construction, unready once draining.
type HealthChecker struct {
	ready        atomic.Bool
	shuttingDown atomic.Bool
	stateSigning bool
	started      time.Time
}

// NewHealthChecker returns a ready HealthChecker. stateSigning is reported
// on the detailed endpoint.
func NewHealthChecker(stateSigning bool) *HealthChecker {
	h := &HealthChecker{stateSigning: stateSigning, started: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady toggles readiness.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetShuttingDown marks the relay as draining so readiness probes fail.
func (h *HealthChecker) SetShuttingDown() {
	h.shuttingDown.Store(true)
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	StateSigning bool   `json:"state_signing"`
}

// checks evaluates the readiness conditions. ok is false if any failed.
func (h *HealthChecker) checks() (checks map[string]string, ok bool) {
	checks = map[string]string{"ready": healthStatusOK, "shutdown": healthStatusOK}
	ok = true
	if !h.ready.Load() {
		checks["ready"] = healthStatusNotReady
		ok = false
	}
	if h.shuttingDown.Load() {
		checks["shutdown"] = healthStatusShuttingDown
		ok = false
	}
	return checks, ok
}

func writeHealthJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler always answers 200 while the process can serve HTTP.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers 503 when the relay is unready or draining.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.checks()
		if !ok {
			writeHealthJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady, Checks: checks})
			return
		}
		writeHealthJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK, Checks: checks})
	})
}

// DetailedHealthHandler adds uptime and the state signing mode.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := DetailedHealthResponse{
			Status:       healthStatusOK,
			Uptime:       time.Since(h.started).Truncate(time.Second).String(),
			StateSigning: h.stateSigning,
		}
		code := http.StatusOK
		switch {
		case h.shuttingDown.Load():
			resp.Status, code = healthStatusShuttingDown, http.StatusServiceUnavailable
		case !h.ready.Load():
			resp.Status, code = healthStatusNotReady, http.StatusServiceUnavailable
		}
		writeHealthJSON(w, code, resp)
	})
}

// RegisterHealthEndpoints mounts the probes on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle(instrumentation.PathHealth, h.LivenessHandler())
	mux.Handle(instrumentation.PathReady, h.ReadinessHandler())
	mux.Handle(instrumentation.PathHealth+"/detailed", h.DetailedHealthHandler())
}
