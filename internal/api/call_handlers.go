package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/calltrail/calltrail/internal/api/middleware"
	"github.com/calltrail/calltrail/internal/database"
	"github.com/calltrail/calltrail/internal/database/models"
	"github.com/go-chi/chi/v5"
)

// callResponse is the JSON response for a single call aggregate.
type callResponse struct {
	ID             int64   `json:"id"`
	ExternalCallID string  `json:"external_call_id"`
	Direction      string  `json:"direction"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	CallState      string  `json:"call_state"`
	LastEventType  string  `json:"last_event_type"`
	DTMFDigits     string  `json:"dtmf_digits,omitempty"`
	DurationSecs   *int    `json:"duration_secs"`
	RecordingURL   string  `json:"recording_url,omitempty"`
	Disposition    string  `json:"disposition,omitempty"`
	AnsweredAt     *string `json:"answered_at"`
	EndedAt        *string `json:"ended_at"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// toCallResponse converts a models.CallLog to the API response.
func toCallResponse(c *models.CallLog) callResponse {
	resp := callResponse{
		ID:             c.ID,
		ExternalCallID: c.ExternalCallID,
		Direction:      c.Direction,
		From:           c.FromAddr,
		To:             c.ToAddr,
		CallState:      string(c.CallState),
		LastEventType:  c.LastEventType,
		DTMFDigits:     c.DTMFDigits,
		DurationSecs:   c.DurationSecs,
		RecordingURL:   c.RecordingURL,
		Disposition:    c.Disposition,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      c.UpdatedAt.Format(time.RFC3339),
	}
	if c.AnsweredAt != nil {
		s := c.AnsweredAt.Format(time.RFC3339)
		resp.AnsweredAt = &s
	}
	if c.EndedAt != nil {
		s := c.EndedAt.Format(time.RFC3339)
		resp.EndedAt = &s
	}
	return resp
}

// timelineEntry is one row of a call's event timeline.
type timelineEntry struct {
	ID              int64   `json:"id"`
	EventType       string  `json:"event_type"`
	ProviderEventID string  `json:"provider_event_id,omitempty"`
	OccurredAt      *string `json:"occurred_at"`
	Payload         string  `json:"payload"`
	CreatedAt       string  `json:"created_at"`
}

// handleListCalls returns call aggregates with pagination and optional
// filters. Query params: limit, offset, search, direction, state,
// start_date, end_date.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	q := r.URL.Query()
	direction := q.Get("direction")
	if direction != "" && direction != "inbound" && direction != "outbound" {
		writeError(w, http.StatusBadRequest, "direction must be \"inbound\" or \"outbound\"")
		return
	}
	state := q.Get("state")
	if state != "" && models.CallState(state).Rank() == 0 && state != string(models.StateUnknown) {
		writeError(w, http.StatusBadRequest, "unknown call state")
		return
	}

	filter := database.CallListFilter{
		Limit:     pg.Limit,
		Offset:    pg.Offset,
		Search:    q.Get("search"),
		Direction: direction,
		State:     state,
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}

	orgID := middleware.OrgFromContext(r.Context())
	calls, total, err := s.calls.List(r.Context(), orgID, filter)
	if err != nil {
		slog.Error("list calls: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]callResponse, len(calls))
	for i := range calls {
		items[i] = toCallResponse(&calls[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleGetCall returns a single call aggregate by ID.
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	call, ok := s.callFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCallResponse(call))
}

// handleCallTimeline returns the ordered accepted events for a call.
func (s *Server) handleCallTimeline(w http.ResponseWriter, r *http.Request) {
	call, ok := s.callFromRequest(w, r)
	if !ok {
		return
	}

	orgID := middleware.OrgFromContext(r.Context())
	events, err := s.events.ListByCall(r.Context(), orgID, call.ID)
	if err != nil {
		slog.Error("call timeline: failed to query", "error", err, "call_id", call.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]timelineEntry, len(events))
	for i, ev := range events {
		entries[i] = timelineEntry{
			ID:              ev.ID,
			EventType:       string(ev.EventType),
			ProviderEventID: ev.ProviderEventID,
			Payload:         ev.Payload,
			CreatedAt:       ev.CreatedAt.Format(time.RFC3339),
		}
		if ev.OccurredAt != nil {
			s := ev.OccurredAt.Format(time.RFC3339)
			entries[i].OccurredAt = &s
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"call_id": call.ID,
		"events":  entries,
	})
}

// callFromRequest resolves the {id} URL param to an org-scoped call
// aggregate, writing the error response itself on failure.
func (s *Server) callFromRequest(w http.ResponseWriter, r *http.Request) (*models.CallLog, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid call id")
		return nil, false
	}

	orgID := middleware.OrgFromContext(r.Context())
	call, err := s.calls.GetByID(r.Context(), orgID, id)
	if err != nil {
		slog.Error("get call: failed to query", "error", err, "call_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if call == nil {
		writeError(w, http.StatusNotFound, "call not found")
		return nil, false
	}
	return call, true
}
