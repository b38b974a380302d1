package httpapi

import (
	"context"
	"net/http"
	"time"
)

// handleHealthz answers as long as the process serves requests.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// handleReadyz probes every registered dependency. Any failure flips the
// whole endpoint to 503 so orchestrators stop routing traffic here.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := make(map[string]any, len(s.checks)+1)

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()

		if err != nil {
			status = http.StatusServiceUnavailable
			report[name] = err.Error()
		} else {
			report[name] = "ok"
		}
	}

	// queue depth per state; informational, the postgres check above already
	// covers connectivity
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	if counts, err := s.results.CountByState(ctx); err == nil {
		report["queue"] = counts
	}
	cancel()

	if err := writeJSON(w, status, report); err != nil {
		s.logger.Error(r.Context(), "write readiness report failed", "error", err)
	}
}
