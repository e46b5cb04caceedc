// Package policy builds auditable structured verdicts for sensitive
// mutations. Evaluation is a pure function over its inputs; the resource
// lookups that feed it live with the callers.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Decision is a verdict. BLOCK dominates REQUIRE_CONFIRMATION dominates
// ALLOW.
type Decision string

const (
	Allow               Decision = "ALLOW"
	RequireConfirmation Decision = "REQUIRE_CONFIRMATION"
	Block               Decision = "BLOCK"
)

// rank orders decisions by restrictiveness.
func (d Decision) rank() int {
	switch d {
	case Block:
		return 2
	case RequireConfirmation:
		return 1
	default:
		return 0
	}
}

// Severity grades a reason for reviewers; it does not affect the verdict.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Evidence references the material a reason rests on. Content is hashed
// before inclusion, never embedded, so the packet itself stays
// low-sensitivity and safe to persist or log.
type Evidence struct {
	Kind        string `json:"kind"`
	Subject     string `json:"subject"`
	ContentHash string `json:"content_hash,omitempty"`
}

// HashEvidence builds an Evidence entry with a SHA-256 hash of the raw
// content.
func HashEvidence(kind, subject string, content []byte) Evidence {
	sum := sha256.Sum256(content)
	return Evidence{
		Kind:        kind,
		Subject:     subject,
		ContentHash: hex.EncodeToString(sum[:]),
	}
}

// Reason is one consideration contributing to a packet.
type Reason struct {
	Code     string     `json:"code"`
	Message  string     `json:"message"`
	Severity Severity   `json:"severity"`
	Decision Decision   `json:"decision"`
	Evidence []Evidence `json:"evidence,omitempty"`
}

// Packet is the aggregated verdict for one sensitive operation.
type Packet struct {
	Decision Decision `json:"decision"`
	Reasons  []Reason `json:"reasons"`
}

// Allowed reports whether the operation may proceed without confirmation.
func (p Packet) Allowed() bool { return p.Decision == Allow }

// Evaluate aggregates candidate reasons into a packet. The verdict is the
// most restrictive decision present. When no reason was added, an
// implicit ALLOW reason is synthesized; a packet is never ambiguous about
// its outcome.
func Evaluate(candidates []Reason) Packet {
	if len(candidates) == 0 {
		candidates = []Reason{{
			Code:     "no_objection",
			Message:  "no policy objection raised",
			Severity: SeverityInfo,
			Decision: Allow,
		}}
	}

	final := Allow
	for _, r := range candidates {
		if r.Decision.rank() > final.rank() {
			final = r.Decision
		}
	}

	return Packet{Decision: final, Reasons: candidates}
}

// BlockedError carries a BLOCK packet to the surface as a typed error,
// so the HTTP layer returns a locked-resource response instead of a
// generic failure.
type BlockedError struct {
	Packet Packet
}

// Error implements error.
func (e *BlockedError) Error() string {
	if len(e.Packet.Reasons) > 0 {
		return fmt.Sprintf("operation blocked by policy: %s", e.Packet.Reasons[0].Code)
	}
	return "operation blocked by policy"
}
