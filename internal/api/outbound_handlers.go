package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/calltrail/calltrail/internal/api/middleware"
	"github.com/calltrail/calltrail/internal/database/models"
	"github.com/calltrail/calltrail/internal/errs"
	"github.com/calltrail/calltrail/internal/outbound"
	"github.com/go-chi/chi/v5"
)

// outboundResponse is the JSON response for an outbound event.
type outboundResponse struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Body      string `json:"body,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toOutboundResponse(ev *models.OutboundEvent) outboundResponse {
	return outboundResponse{
		ID:        ev.ID,
		Channel:   ev.Channel,
		Recipient: ev.Recipient,
		Body:      ev.Body,
		MediaURL:  ev.MediaURL,
		Status:    ev.Status,
		CreatedAt: ev.CreatedAt.Format(time.RFC3339),
		UpdatedAt: ev.UpdatedAt.Format(time.RFC3339),
	}
}

// attemptResponse is one delivery attempt on an outbound event.
type attemptResponse struct {
	ID        int64  `json:"id"`
	Provider  string `json:"provider"`
	Outcome   string `json:"outcome"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
}

// sendOutboundRequest is the body for dispatching an outbound send.
type sendOutboundRequest struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
	MediaURL  string `json:"media_url"`
}

// handleSendOutbound dispatches one outbound send. The event and its
// attempt are durably recorded before the outcome is reported, so a
// provider failure still answers with the failed event rather than a
// bare error.
func (s *Server) handleSendOutbound(w http.ResponseWriter, r *http.Request) {
	var req sendOutboundRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Channel != outbound.ChannelSMS && req.Channel != outbound.ChannelFax && req.Channel != outbound.ChannelVoice {
		writeError(w, http.StatusBadRequest, "channel must be \"sms\", \"fax\", or \"voice\"")
		return
	}
	if errMsg := validateRecipient("recipient", req.Recipient); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateStringLen("body", req.Body, maxBodyLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateStringLen("media_url", req.MediaURL, maxURLLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ctx := r.Context()
	orgID := middleware.OrgFromContext(ctx)
	ev, err := s.dispatcher.Send(ctx, orgID, operatorActor(ctx), outbound.SendRequest{
		Channel:   req.Channel,
		Recipient: req.Recipient,
		Body:      req.Body,
		MediaURL:  req.MediaURL,
	})
	if err != nil {
		if errs.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if ev != nil {
			// Recorded as failed; report the event with the failure.
			status := http.StatusBadGateway
			if errs.IsConfiguration(err) {
				status = http.StatusServiceUnavailable
			}
			writeFailedSend(w, status, toOutboundResponse(ev), err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOutboundResponse(ev))
}

// writeFailedSend answers a recorded-but-failed send: the event rides
// in data, the provider failure in error.
func writeFailedSend(w http.ResponseWriter, status int, ev outboundResponse, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := envelope{Data: map[string]any{"event": ev}, Error: msg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode send failure response", "error", err)
	}
}

// handleListOutbound returns outbound events with pagination.
func (s *Server) handleListOutbound(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	orgID := middleware.OrgFromContext(r.Context())
	events, total, err := s.outEvents.List(r.Context(), orgID, pg.Limit, pg.Offset)
	if err != nil {
		slog.Error("list outbound: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]outboundResponse, len(events))
	for i := range events {
		items[i] = toOutboundResponse(&events[i])
	}
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleGetOutbound returns one outbound event with its delivery attempts.
func (s *Server) handleGetOutbound(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	orgID := middleware.OrgFromContext(r.Context())

	ev, err := s.outEvents.GetByID(r.Context(), orgID, id)
	if err != nil {
		slog.Error("get outbound: failed to query", "error", err, "event_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "outbound event not found")
		return
	}

	attempts, err := s.attempts.ListByEvent(r.Context(), ev.ID)
	if err != nil {
		slog.Error("get outbound: failed to list attempts", "error", err, "event_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	attemptItems := make([]attemptResponse, len(attempts))
	for i, a := range attempts {
		attemptItems[i] = attemptResponse{
			ID:        a.ID,
			Provider:  a.Provider,
			Outcome:   a.Outcome,
			Response:  a.Response,
			Error:     a.Error,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event":    toOutboundResponse(ev),
		"attempts": attemptItems,
	})
}

// handleRetryOutbound marks a failed outbound event for retry. The send
// is not re-executed here; retry_queued is a durable marker for the
// operator workflow that drains it.
func (s *Server) handleRetryOutbound(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	orgID := middleware.OrgFromContext(ctx)

	ev, err := s.dispatcher.Retry(ctx, orgID, id, operatorActor(ctx))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOutboundResponse(ev))
}
