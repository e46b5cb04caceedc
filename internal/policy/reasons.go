package policy

import (
	"fmt"

	"github.com/calltrail/calltrail/internal/database/models"
)

// HoldReason builds the blocking reason for a resource under an active
// legal hold. The hold reference serves as evidence; hold metadata is
// hashed, not embedded.
func HoldReason(hold *models.LegalHold) Reason {
	return Reason{
		Code:     "legal_hold_active",
		Message:  fmt.Sprintf("%s %s is under an active legal hold", hold.ResourceType, hold.ResourceID),
		Severity: SeverityCritical,
		Decision: Block,
		Evidence: []Evidence{
			HashEvidence("legal_hold", fmt.Sprintf("hold:%d", hold.ID), []byte(hold.Reason)),
		},
	}
}

// TranscriptReasons gathers candidate reasons for creating a transcript
// on a call. hold may be nil.
func TranscriptReasons(hold *models.LegalHold, confidence, confidenceMin float64, text string) []Reason {
	var reasons []Reason

	if hold != nil {
		reasons = append(reasons, HoldReason(hold))
	}

	if confidence < confidenceMin {
		reasons = append(reasons, Reason{
			Code:     "low_transcription_confidence",
			Message:  fmt.Sprintf("transcription confidence %.2f is below the %.2f threshold", confidence, confidenceMin),
			Severity: SeverityWarning,
			Decision: RequireConfirmation,
			Evidence: []Evidence{
				HashEvidence("transcript_text", "candidate", []byte(text)),
			},
		})
	}

	return reasons
}

// RecordingDownloadReasons gathers candidate reasons for downloading a
// recording. hold may be nil.
func RecordingDownloadReasons(hold *models.LegalHold) []Reason {
	if hold == nil {
		return nil
	}
	return []Reason{HoldReason(hold)}
}

// SynthesisPlanReasons gathers candidate reasons for planning voice
// synthesis: ambient noise above the threshold blocks, and a disabled
// output speaker requires confirmation.
func SynthesisPlanReasons(ambientNoise, noiseMax float64, speakerEnabled bool) []Reason {
	var reasons []Reason

	if ambientNoise > noiseMax {
		reasons = append(reasons, Reason{
			Code:     "ambient_noise_excessive",
			Message:  fmt.Sprintf("ambient noise %.2f exceeds the %.2f threshold", ambientNoise, noiseMax),
			Severity: SeverityWarning,
			Decision: Block,
			Evidence: []Evidence{
				HashEvidence("noise_sample", "ambient", []byte(fmt.Sprintf("%.4f", ambientNoise))),
			},
		})
	}

	if !speakerEnabled {
		reasons = append(reasons, Reason{
			Code:     "speaker_disabled",
			Message:  "output device speaker is disabled",
			Severity: SeverityWarning,
			Decision: RequireConfirmation,
		})
	}

	return reasons
}
