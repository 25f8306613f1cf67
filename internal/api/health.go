package api

import (
	"context"
	"net/http"
	"time"
)

type healthStatus struct {
	Status       string                     `json:"status"`
	Dependencies map[string]dependencyState `json:"dependencies"`
}

type dependencyState struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	depHealthy      = "healthy"
	depUnhealthy    = "unhealthy"
	depNotConfigured = "not_configured"
)

// handleHealth aggregates reachability of every dependency named in spec
// §6.1's /health entry: document store, upstream, object store, and
// scheduler liveness. Returns 200 if every configured dependency is
// healthy, 503 otherwise — callers must still read the body, since an
// individual dependency failing does not mean the process itself is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deps := make(map[string]dependencyState, len(s.dependencies)+1)
	allHealthy := true

	for name, p := range s.dependencies {
		if err := p.Ping(ctx); err != nil {
			deps[name] = dependencyState{Status: depUnhealthy, Error: err.Error()}
			allHealthy = false

			continue
		}

		deps[name] = dependencyState{Status: depHealthy}
	}

	switch {
	case s.schedulerOK == nil:
		deps["scheduler"] = dependencyState{Status: depNotConfigured}
	case s.schedulerOK():
		deps["scheduler"] = dependencyState{Status: depHealthy}
	default:
		deps["scheduler"] = dependencyState{Status: depUnhealthy}
		allHealthy = false
	}

	status := "healthy"
	httpStatus := http.StatusOK

	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeData(w, httpStatus, healthStatus{Status: status, Dependencies: deps})
}
