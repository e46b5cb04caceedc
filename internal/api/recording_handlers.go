package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/calltrail/calltrail/internal/api/middleware"
	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/database/models"
	"github.com/calltrail/calltrail/internal/policy"
	"github.com/go-chi/chi/v5"
)

// recordingResponse is the JSON response for a recording registration.
type recordingResponse struct {
	ID                  int64  `json:"id"`
	CallID              int64  `json:"call_id"`
	ProviderRecordingID string `json:"provider_recording_id,omitempty"`
	URL                 string `json:"url"`
	Classification      string `json:"classification"`
	RetentionPolicy     string `json:"retention_policy"`
	RetainUntil         string `json:"retain_until"`
	CreatedAt           string `json:"created_at"`
}

func toRecordingResponse(rec *models.Recording) recordingResponse {
	return recordingResponse{
		ID:                  rec.ID,
		CallID:              rec.CallID,
		ProviderRecordingID: rec.ProviderRecordingID,
		URL:                 rec.URL,
		Classification:      rec.Classification,
		RetentionPolicy:     rec.RetentionPolicy,
		RetainUntil:         rec.RetainUntil.Format(time.RFC3339),
		CreatedAt:           rec.CreatedAt.Format(time.RFC3339),
	}
}

// handleListCallRecordings returns the recordings registered on a call.
func (s *Server) handleListCallRecordings(w http.ResponseWriter, r *http.Request) {
	call, ok := s.callFromRequest(w, r)
	if !ok {
		return
	}

	orgID := middleware.OrgFromContext(r.Context())
	recs, err := s.recordings.ListByCall(r.Context(), orgID, call.ID)
	if err != nil {
		slog.Error("list recordings: failed to query", "error", err, "call_id", call.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]recordingResponse, len(recs))
	for i := range recs {
		items[i] = toRecordingResponse(&recs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleGetRecording returns one recording registration by ID.
func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.recordingFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRecordingResponse(rec))
}

// handleDownloadRecording streams the recording media. The policy gate
// runs before any storage access: a recording under an active legal
// hold is never read from disk.
func (s *Server) handleDownloadRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.recordingFromRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	orgID := middleware.OrgFromContext(ctx)
	hold, err := s.holds.Active(ctx, orgID, "recording", strconv.FormatInt(rec.ID, 10))
	if err != nil {
		slog.Error("download recording: hold lookup failed", "error", err, "recording_id", rec.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	packet := policy.Evaluate(policy.RecordingDownloadReasons(hold))
	s.auditSink.Record(ctx, audit.Entry{
		OrgID:        orgID,
		Actor:        operatorActor(ctx),
		Action:       "recording_download",
		ResourceType: "recording",
		ResourceID:   strconv.FormatInt(rec.ID, 10),
		Decision:     string(packet.Decision),
	})
	if !packet.Allowed() {
		writeBlocked(w, http.StatusLocked, packet)
		return
	}

	data, err := s.store.ReadBytes(ctx, rec.URL)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", "attachment; filename=recording-"+strconv.FormatInt(rec.ID, 10)+".wav")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("download recording: write failed", "error", err, "recording_id", rec.ID)
	}
}

// recordingFromRequest resolves the {id} URL param to an org-scoped
// recording, writing the error response itself on failure.
func (s *Server) recordingFromRequest(w http.ResponseWriter, r *http.Request) (*models.Recording, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recording id")
		return nil, false
	}

	orgID := middleware.OrgFromContext(r.Context())
	rec, err := s.recordings.GetByID(r.Context(), orgID, id)
	if err != nil {
		slog.Error("get recording: failed to query", "error", err, "recording_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "recording not found")
		return nil, false
	}
	return rec, true
}
