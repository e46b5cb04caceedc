package api

import (
	"net/http"

	"github.com/calltrail/calltrail/internal/api/middleware"
	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/policy"
)

// planSynthesisRequest is the body for planning a voice synthesis
// utterance. AmbientNoise is the caller-measured noise level in the
// 0..1 range; SpeakerEnabled reflects the target device state.
type planSynthesisRequest struct {
	Text           string  `json:"text"`
	AmbientNoise   float64 `json:"ambient_noise"`
	SpeakerEnabled bool    `json:"speaker_enabled"`
	Confirm        bool    `json:"confirm"`
}

// handlePlanSynthesis evaluates whether a synthesis utterance may
// proceed. The endpoint plans only; it performs no audio output itself.
func (s *Server) handlePlanSynthesis(w http.ResponseWriter, r *http.Request) {
	var req planSynthesisRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("text", req.Text, maxTextLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.AmbientNoise < 0 || req.AmbientNoise > 1 {
		writeError(w, http.StatusBadRequest, "ambient_noise must be between 0 and 1")
		return
	}

	ctx := r.Context()
	packet := policy.Evaluate(policy.SynthesisPlanReasons(req.AmbientNoise,
		s.cfg.SynthesisNoiseMax, req.SpeakerEnabled))
	s.auditSink.Record(ctx, audit.Entry{
		OrgID:        middleware.OrgFromContext(ctx),
		Actor:        operatorActor(ctx),
		Action:       "synthesis_plan",
		ResourceType: "synthesis",
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

	writeJSON(w, http.StatusOK, map[string]any{
		"utterance": req.Text,
		"packet":    packet,
	})
}
