package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/calltrail/calltrail/internal/api/middleware"
	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/database/models"
	"github.com/calltrail/calltrail/internal/policy"
)

// operatorActor formats the authenticated operator as an audit actor.
func operatorActor(ctx context.Context) string {
	subject := middleware.SubjectFromContext(ctx)
	if subject == "" {
		subject = "unknown"
	}
	return "operator:" + subject
}

// transcriptResponse is the JSON response for a transcript.
type transcriptResponse struct {
	ID          int64   `json:"id"`
	CallID      int64   `json:"call_id"`
	RecordingID *int64  `json:"recording_id"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	CreatedAt   string  `json:"created_at"`
}

func toTranscriptResponse(tr *models.Transcript) transcriptResponse {
	return transcriptResponse{
		ID:          tr.ID,
		CallID:      tr.CallID,
		RecordingID: tr.RecordingID,
		Text:        tr.Text,
		Confidence:  tr.Confidence,
		CreatedAt:   tr.CreatedAt.Format(time.RFC3339),
	}
}

// createTranscriptRequest is the body for creating a transcript on a call.
type createTranscriptRequest struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	RecordingID *int64  `json:"recording_id"`
	Confirm     bool    `json:"confirm"`
}

// handleListCallTranscripts returns the transcripts attached to a call.
func (s *Server) handleListCallTranscripts(w http.ResponseWriter, r *http.Request) {
	call, ok := s.callFromRequest(w, r)
	if !ok {
		return
	}

	orgID := middleware.OrgFromContext(r.Context())
	trs, err := s.transcripts.ListByCall(r.Context(), orgID, call.ID)
	if err != nil {
		slog.Error("list transcripts: failed to query", "error", err, "call_id", call.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]transcriptResponse, len(trs))
	for i := range trs {
		items[i] = toTranscriptResponse(&trs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleCreateTranscript attaches a transcript to a call. The operation
// is policy-gated: an active legal hold on the call blocks it outright,
// and low transcription confidence requires explicit confirmation.
func (s *Server) handleCreateTranscript(w http.ResponseWriter, r *http.Request) {
	call, ok := s.callFromRequest(w, r)
	if !ok {
		return
	}

	var req createTranscriptRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("text", req.Text, maxTextLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		writeError(w, http.StatusBadRequest, "confidence must be between 0 and 1")
		return
	}

	ctx := r.Context()
	orgID := middleware.OrgFromContext(ctx)
	hold, err := s.holds.Active(ctx, orgID, "call", strconv.FormatInt(call.ID, 10))
	if err != nil {
		slog.Error("create transcript: hold lookup failed", "error", err, "call_id", call.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	packet := policy.Evaluate(policy.TranscriptReasons(hold, req.Confidence,
		s.cfg.TranscriptConfidenceMin, req.Text))
	s.auditSink.Record(ctx, audit.Entry{
		OrgID:        orgID,
		Actor:        operatorActor(ctx),
		Action:       "transcript_create",
		ResourceType: "call",
		ResourceID:   strconv.FormatInt(call.ID, 10),
		Decision:     string(packet.Decision),
	})
	switch packet.Decision {
	case policy.Block:
		writeBlocked(w, http.StatusLocked, packet)
		return
	case policy.RequireConfirmation:
		if !req.Confirm {
			writeBlocked(w, http.StatusPreconditionRequired, packet)
			return
		}
	}

	tr := &models.Transcript{
		OrgID:       orgID,
		CallID:      call.ID,
		RecordingID: req.RecordingID,
		Text:        req.Text,
		Confidence:  req.Confidence,
	}
	if err := s.transcripts.Create(ctx, tr); err != nil {
		slog.Error("create transcript: insert failed", "error", err, "call_id", call.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"transcript": toTranscriptResponse(tr),
		"packet":     packet,
	})
}
