package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/calltrail/calltrail/internal/database/models"
)

func TestEvaluateImplicitAllow(t *testing.T) {
	p := Evaluate(nil)
	if p.Decision != Allow {
		t.Fatalf("decision = %q, want ALLOW", p.Decision)
	}
	if len(p.Reasons) != 1 || p.Reasons[0].Code != "no_objection" {
		t.Fatalf("reasons = %+v, want single implicit allow", p.Reasons)
	}
	if !p.Allowed() {
		t.Error("Allowed() = false for implicit allow")
	}
}

func TestEvaluateMostRestrictiveWins(t *testing.T) {
	tests := []struct {
		name      string
		decisions []Decision
		want      Decision
	}{
		{"allow only", []Decision{Allow}, Allow},
		{"confirmation beats allow", []Decision{Allow, RequireConfirmation}, RequireConfirmation},
		{"block beats confirmation", []Decision{RequireConfirmation, Block, Allow}, Block},
		{"order does not matter", []Decision{Block, Allow}, Block},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasons := make([]Reason, len(tt.decisions))
			for i, d := range tt.decisions {
				reasons[i] = Reason{Code: "r", Decision: d}
			}
			p := Evaluate(reasons)
			if p.Decision != tt.want {
				t.Errorf("decision = %q, want %q", p.Decision, tt.want)
			}
			if len(p.Reasons) != len(reasons) {
				t.Errorf("reasons = %d, want all %d retained", len(p.Reasons), len(reasons))
			}
		})
	}
}

func TestHashEvidence(t *testing.T) {
	content := []byte("the transcript text")
	ev := HashEvidence("transcript_text", "candidate", content)

	sum := sha256.Sum256(content)
	if ev.ContentHash != hex.EncodeToString(sum[:]) {
		t.Errorf("content hash = %q, want sha256 of content", ev.ContentHash)
	}
	if strings.Contains(ev.ContentHash, "transcript text") {
		t.Error("evidence embeds raw content")
	}
	if ev.Kind != "transcript_text" || ev.Subject != "candidate" {
		t.Errorf("evidence = %+v", ev)
	}
}

func TestHoldReasonBlocks(t *testing.T) {
	hold := &models.LegalHold{
		ID:           7,
		ResourceType: "recording",
		ResourceID:   "4",
		Reason:       "litigation 2026-114",
	}

	r := HoldReason(hold)
	if r.Decision != Block || r.Severity != SeverityCritical {
		t.Fatalf("reason = %+v, want critical block", r)
	}
	if len(r.Evidence) != 1 {
		t.Fatalf("evidence = %+v, want one entry", r.Evidence)
	}
	// The hold's reason text is hashed, never embedded.
	if strings.Contains(r.Message, "litigation") {
		t.Error("hold reason text leaked into message")
	}
	if r.Evidence[0].ContentHash == "" {
		t.Error("evidence missing content hash")
	}
}

func TestTranscriptReasons(t *testing.T) {
	t.Run("clean", func(t *testing.T) {
		reasons := TranscriptReasons(nil, 0.95, 0.80, "hello")
		p := Evaluate(reasons)
		if p.Decision != Allow {
			t.Errorf("decision = %q, want ALLOW", p.Decision)
		}
	})

	t.Run("low confidence requires confirmation", func(t *testing.T) {
		reasons := TranscriptReasons(nil, 0.42, 0.80, "mumbled text")
		p := Evaluate(reasons)
		if p.Decision != RequireConfirmation {
			t.Errorf("decision = %q, want REQUIRE_CONFIRMATION", p.Decision)
		}
	})

	t.Run("hold blocks even with high confidence", func(t *testing.T) {
		hold := &models.LegalHold{ID: 1, ResourceType: "call", ResourceID: "3"}
		reasons := TranscriptReasons(hold, 0.99, 0.80, "clear text")
		p := Evaluate(reasons)
		if p.Decision != Block {
			t.Errorf("decision = %q, want BLOCK", p.Decision)
		}
	})

	t.Run("hold and low confidence both reported", func(t *testing.T) {
		hold := &models.LegalHold{ID: 1, ResourceType: "call", ResourceID: "3"}
		reasons := TranscriptReasons(hold, 0.10, 0.80, "text")
		p := Evaluate(reasons)
		if p.Decision != Block {
			t.Errorf("decision = %q, want BLOCK", p.Decision)
		}
		if len(p.Reasons) != 2 {
			t.Errorf("reasons = %d, want both retained in the packet", len(p.Reasons))
		}
	})
}

func TestSynthesisPlanReasons(t *testing.T) {
	t.Run("quiet room, speaker on", func(t *testing.T) {
		p := Evaluate(SynthesisPlanReasons(0.2, 0.6, true))
		if p.Decision != Allow {
			t.Errorf("decision = %q, want ALLOW", p.Decision)
		}
	})

	t.Run("noisy room blocks", func(t *testing.T) {
		p := Evaluate(SynthesisPlanReasons(0.9, 0.6, true))
		if p.Decision != Block {
			t.Errorf("decision = %q, want BLOCK", p.Decision)
		}
	})

	t.Run("speaker off requires confirmation", func(t *testing.T) {
		p := Evaluate(SynthesisPlanReasons(0.2, 0.6, false))
		if p.Decision != RequireConfirmation {
			t.Errorf("decision = %q, want REQUIRE_CONFIRMATION", p.Decision)
		}
	})

	t.Run("noise at threshold allows", func(t *testing.T) {
		p := Evaluate(SynthesisPlanReasons(0.6, 0.6, true))
		if p.Decision != Allow {
			t.Errorf("decision = %q, want ALLOW at exact threshold", p.Decision)
		}
	})
}

func TestBlockedError(t *testing.T) {
	packet := Evaluate([]Reason{{Code: "legal_hold_active", Decision: Block}})
	err := &BlockedError{Packet: packet}
	if !strings.Contains(err.Error(), "legal_hold_active") {
		t.Errorf("Error() = %q, want first reason code", err.Error())
	}
}
