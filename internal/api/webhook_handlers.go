package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/calltrail/calltrail/internal/errs"
)

// webhookAck is the JSON body returned to the provider for every
// delivery past the signature gate. All outcomes answer 200 so the
// provider stops retrying; only an authentication failure is a 401.
type webhookAck struct {
	Status   string `json:"status"`
	Accepted bool   `json:"accepted"`
	CallID   int64  `json:"call_id,omitempty"`
}

// handleTelephonyWebhook ingests one provider delivery. The raw body is
// read before any parsing because the signature covers the exact bytes
// on the wire.
func (s *Server) handleTelephonyWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	outcome, err := s.processor.Process(r.Context(), rawBody,
		r.Header.Get(s.cfg.SignatureHeader), r.Header.Get(s.cfg.TimestampHeader))
	if err != nil {
		if errs.IsAuthentication(err) {
			writeError(w, http.StatusUnauthorized, "signature verification failed")
			return
		}
		if errs.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("webhook processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ack := webhookAck{Status: outcome.Status, Accepted: outcome.Accepted}
	if outcome.Call != nil {
		ack.CallID = outcome.Call.ID
	}

	// The ack is the provider's wire format, not the operator envelope:
	// a flat {"status": ...} body.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ack); err != nil {
		slog.Error("failed to encode webhook ack", "error", err)
	}
}
