package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/calltrail/calltrail/internal/api/middleware"
	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/database/models"
	"github.com/go-chi/chi/v5"
)

// holdResponse is the JSON response for a legal hold.
type holdResponse struct {
	ID           int64   `json:"id"`
	ResourceType string  `json:"resource_type"`
	ResourceID   string  `json:"resource_id"`
	Reason       string  `json:"reason"`
	CreatedAt    string  `json:"created_at"`
	ReleasedAt   *string `json:"released_at"`
}

func toHoldResponse(h *models.LegalHold) holdResponse {
	resp := holdResponse{
		ID:           h.ID,
		ResourceType: h.ResourceType,
		ResourceID:   h.ResourceID,
		Reason:       h.Reason,
		CreatedAt:    h.CreatedAt.Format(time.RFC3339),
	}
	if h.ReleasedAt != nil {
		s := h.ReleasedAt.Format(time.RFC3339)
		resp.ReleasedAt = &s
	}
	return resp
}

// createHoldRequest is the body for placing a legal hold.
type createHoldRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Reason       string `json:"reason"`
}

// holdResourceTypes are the resource kinds a hold can attach to.
var holdResourceTypes = map[string]bool{
	"call":      true,
	"recording": true,
}

// handleCreateHold places a legal hold on a resource.
func (s *Server) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	var req createHoldRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if !holdResourceTypes[req.ResourceType] {
		writeError(w, http.StatusBadRequest, "resource_type must be \"call\" or \"recording\"")
		return
	}
	if errMsg := validateRequiredStringLen("resource_id", req.ResourceID, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("reason", req.Reason, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateNoControlChars("reason", req.Reason); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ctx := r.Context()
	orgID := middleware.OrgFromContext(ctx)

	existing, err := s.holds.Active(ctx, orgID, req.ResourceType, req.ResourceID)
	if err != nil {
		slog.Error("create hold: active lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "resource already has an active hold")
		return
	}

	hold := &models.LegalHold{
		OrgID:        orgID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Reason:       req.Reason,
	}
	if err := s.holds.Create(ctx, hold); err != nil {
		slog.Error("create hold: insert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditSink.Record(ctx, audit.Entry{
		OrgID:        orgID,
		Actor:        operatorActor(ctx),
		Action:       "legal_hold_created",
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
	})

	writeJSON(w, http.StatusCreated, toHoldResponse(hold))
}

// handleReleaseHold releases an active hold. The hold row stays for
// the record; only released_at changes.
func (s *Server) handleReleaseHold(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hold id")
		return
	}

	ctx := r.Context()
	orgID := middleware.OrgFromContext(ctx)
	if err := s.holds.Release(ctx, orgID, id); err != nil {
		writeDomainError(w, err)
		return
	}

	s.auditSink.Record(ctx, audit.Entry{
		OrgID:        orgID,
		Actor:        operatorActor(ctx),
		Action:       "legal_hold_released",
		ResourceType: "legal_hold",
		ResourceID:   strconv.FormatInt(id, 10),
	})

	writeJSON(w, http.StatusOK, map[string]any{"released": true})
}

// handleListHolds returns all holds for the org, active and released.
func (s *Server) handleListHolds(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.OrgFromContext(r.Context())
	holds, err := s.holds.List(r.Context(), orgID)
	if err != nil {
		slog.Error("list holds: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]holdResponse, len(holds))
	for i := range holds {
		items[i] = toHoldResponse(&holds[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
