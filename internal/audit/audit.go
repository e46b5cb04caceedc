// Package audit records every accepted mutation for compliance review.
// Audit records are append-only and never block the flow that produced
// them: sinks log failures and move on.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SystemActor is the explicit identity attributed to mutations driven by
// webhook deliveries and background jobs rather than an operator.
const SystemActor = "system:calltrail"

// Entry is one audit record.
type Entry struct {
	OrgID        string
	Actor        string // operator subject or SystemActor
	Action       string
	ResourceType string
	ResourceID   string
	EventType    string
	Decision     string // policy verdict, when the action was gated
	Before       string // JSON, optional
	After        string // JSON, optional
	Payload      string // JSON, optional
	CreatedAt    time.Time
}

// Sink records audit entries. Recording is best-effort: implementations
// must not return errors into business flows.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

// NopSink discards all entries. Used in tests.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, Entry) {}

// newID returns a fresh audit record id.
func newID() string { return uuid.NewString() }

// logFailure reports a sink write failure without interrupting the caller.
func logFailure(logger *slog.Logger, e Entry, err error) {
	logger.Error("audit record failed",
		"error", err, "action", e.Action,
		"resource_type", e.ResourceType, "resource_id", e.ResourceID)
}
