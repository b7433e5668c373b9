package health

import (
	"encoding/json"
	"net/http"
	"runtime"

	"mercator-hq/pulse/pkg/config"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	// Version is the semantic version (e.g., "1.0.0")
	Version string `json:"version"`

	// Commit is the git commit hash
	Commit string `json:"commit"`

	// BuildTime is when the binary was built
	BuildTime string `json:"build_time"`

	// GoVersion is the Go version used to build
	GoVersion string `json:"go_version"`
}

// StatusFunc produces the body of the status endpoint.
type StatusFunc func() any

// LivenessHandler returns an HTTP handler for the liveness probe endpoint.
//
// Example response:
//
//	{
//	    "status": "ok",
//	    "timestamp": "2026-01-12T10:30:00Z"
//	}
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowed(w, r) {
			return
		}
		writeJSON(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler returns an HTTP handler for the readiness probe endpoint.
// It performs all registered component health checks.
//
// Returns:
//   - 200 OK: ready, or degraded because an optional dependency is down
//   - 503 Service Unavailable: a required check failed
//
// Example response (store unreachable):
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "store": {"status": "unhealthy", "message": "dial tcp: connection refused", "optional": true}
//	    },
//	    "timestamp": "2026-01-12T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowed(w, r) {
			return
		}

		status := c.CheckReadiness(r.Context())

		code := http.StatusOK
		if status.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, r, code, status)
	}
}

// StatusHandler returns an HTTP handler serving the value produced by fn.
func StatusHandler(fn StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowed(w, r) {
			return
		}
		writeJSON(w, r, http.StatusOK, fn())
	}
}

// VersionHandler returns an HTTP handler for the version information endpoint.
func VersionHandler(version, commit, buildTime string) http.HandlerFunc {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !allowed(w, r) {
			return
		}
		writeJSON(w, r, http.StatusOK, info)
	}
}

// Mount registers the liveness, readiness, status and version endpoints on
// mux at the paths named by cfg. A nil status func skips the status endpoint.
//
//	mux := http.NewServeMux()
//	health.Mount(mux, checker, cfg.Telemetry.Health, func() any { return c.Status() }, info)
func Mount(mux *http.ServeMux, checker *Checker, cfg config.HealthConfig, status StatusFunc, info VersionInfo) {
	mux.HandleFunc(cfg.LivenessPath, checker.LivenessHandler())
	mux.HandleFunc(cfg.ReadinessPath, checker.ReadinessHandler())
	if status != nil {
		mux.HandleFunc(cfg.StatusPath, StatusHandler(status))
	}
	mux.HandleFunc(cfg.VersionPath, VersionHandler(info.Version, info.Commit, info.BuildTime))
}

func allowed(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(body)
	}
}
