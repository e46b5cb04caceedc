package api

import (
	"log/slog"
	"net/http"
)

// handleHealth returns basic health status. Unauthenticated; load
// balancers probe it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		slog.Error("health check: database unreachable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSystemStatus returns aggregate counters for the operator
// dashboard.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	callsByState, err := s.calls.CountByState(ctx)
	if err != nil {
		slog.Error("system status: failed to count calls", "error", err)
		callsByState = nil
	}

	totalEvents, err := s.events.Count(ctx)
	if err != nil {
		slog.Error("system status: failed to count events", "error", err)
	}

	outboundByStatus, err := s.outEvents.CountByStatus(ctx)
	if err != nil {
		slog.Error("system status: failed to count outbound events", "error", err)
		outboundByStatus = nil
	}

	accepted, duplicates, unknown, softSkips := s.processor.StatsSnapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"calls_by_state":     callsByState,
		"total_events":       totalEvents,
		"outbound_by_status": outboundByStatus,
		"webhook": map[string]int64{
			"accepted":      accepted,
			"duplicates":    duplicates,
			"unknown_types": unknown,
			"soft_skips":    softSkips,
		},
	})
}
