package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/database"
	"github.com/calltrail/calltrail/internal/database/models"
	"github.com/calltrail/calltrail/internal/retention"
)

// Outcome status values returned to the provider. Soft skips still answer
// HTTP 200 so the provider stops retrying.
const (
	StatusOK             = "ok"
	StatusNoOrg          = "no_org"
	StatusModuleDisabled = "module_disabled"
)

// Outcome is the result of processing one delivery.
type Outcome struct {
	Status   string
	Accepted bool // false for duplicates and soft skips
	Call     *models.CallLog
}

// DedupCache is an optional fast-path check for previously seen provider
// event ids. A cache miss or error just falls through to the database;
// the unique constraint remains the sole correctness mechanism.
type DedupCache interface {
	Seen(ctx context.Context, orgID, providerEventID string) bool
	Mark(ctx context.Context, orgID, providerEventID string)
}

// Stats counts processing outcomes for the metrics collector.
type Stats struct {
	Accepted     atomic.Int64
	Duplicates   atomic.Int64
	UnknownTypes atomic.Int64
	SoftSkips    atomic.Int64
}

// Processor orchestrates the ingestion of webhook deliveries.
type Processor struct {
	verifier         *Verifier
	requireSignature bool

	orgs       database.OrgRepository
	calls      database.CallLogRepository
	events     database.CallEventRepository
	recordings database.RecordingRepository
	policies   retention.Resolver
	auditSink  audit.Sink
	dedup      DedupCache // may be nil

	stats  Stats
	logger *slog.Logger
}

// NewProcessor creates a Processor. dedup may be nil to disable the cache
// fast path.
func NewProcessor(
	verifier *Verifier,
	requireSignature bool,
	orgs database.OrgRepository,
	calls database.CallLogRepository,
	events database.CallEventRepository,
	recordings database.RecordingRepository,
	policies retention.Resolver,
	auditSink audit.Sink,
	dedup DedupCache,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		verifier:         verifier,
		requireSignature: requireSignature,
		orgs:             orgs,
		calls:            calls,
		events:           events,
		recordings:       recordings,
		policies:         policies,
		auditSink:        auditSink,
		dedup:            dedup,
		logger:           logger.With("component", "webhook"),
	}
}

// Stats exposes the processing counters.
func (p *Processor) StatsSnapshot() (accepted, duplicates, unknown, softSkips int64) {
	return p.stats.Accepted.Load(), p.stats.Duplicates.Load(),
		p.stats.UnknownTypes.Load(), p.stats.SoftSkips.Load()
}

// Process verifies, decodes, and applies one webhook delivery.
// An AuthenticationError is terminal for the request; everything past the
// signature gate resolves to an Outcome the provider treats as delivered.
func (p *Processor) Process(ctx context.Context, rawBody []byte, signatureHeader, timestampHeader string) (*Outcome, error) {
	if p.requireSignature {
		if err := p.verifier.Verify(rawBody, signatureHeader, timestampHeader); err != nil {
			return nil, err
		}
	}

	delivery, err := ParseDelivery(rawBody)
	if err != nil {
		return nil, err
	}

	org, err := p.orgs.GetByProviderAccountID(ctx, delivery.AccountID())
	if err != nil {
		return nil, fmt.Errorf("resolving org: %w", err)
	}
	if org == nil {
		p.stats.SoftSkips.Add(1)
		p.logger.Info("delivery for unknown account", "account_id", delivery.AccountID())
		return &Outcome{Status: StatusNoOrg}, nil
	}
	if !org.TelephonyEnabled {
		p.stats.SoftSkips.Add(1)
		return &Outcome{Status: StatusModuleDisabled}, nil
	}

	state, eventType := Normalize(delivery.RawEventType)
	if eventType == models.EventUnknown {
		p.stats.UnknownTypes.Add(1)
		p.logger.Warn("unknown provider event type",
			"event_type", delivery.RawEventType, "org_id", org.OrgID)
	}

	// Cache fast path: a delivery we have definitely seen still refreshes
	// the aggregate's payload snapshot, but skips the insert attempt.
	cached := false
	if p.dedup != nil && delivery.ProviderEventID != "" {
		cached = p.dedup.Seen(ctx, org.OrgID, delivery.ProviderEventID)
	}

	// The refresh merge is idempotent to reapply, so it runs for every
	// delivery, duplicate or not. DTMF append is not idempotent and is
	// withheld until the event row is accepted.
	call, err := p.calls.Upsert(ctx, org.OrgID, delivery.ExternalCallID(),
		p.refreshFields(delivery, state, eventType))
	if err != nil {
		return nil, fmt.Errorf("upserting call aggregate: %w", err)
	}

	if cached {
		p.stats.Duplicates.Add(1)
		if err := p.ensureRecording(ctx, org.OrgID, call, eventType, delivery); err != nil {
			return nil, err
		}
		return &Outcome{Status: StatusOK, Call: call}, nil
	}

	ev := &models.CallEvent{
		OrgID:           org.OrgID,
		CallID:          call.ID,
		ExternalCallID:  delivery.ExternalCallID(),
		EventType:       eventType,
		ProviderEventID: delivery.ProviderEventID,
		OccurredAt:      delivery.OccurredAt,
		Payload:         delivery.RawPayload,
	}
	accepted, _, err := p.events.TryAccept(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("accepting call event: %w", err)
	}

	if p.dedup != nil && delivery.ProviderEventID != "" {
		p.dedup.Mark(ctx, org.OrgID, delivery.ProviderEventID)
	}

	if !accepted {
		// Provider retry: the payload refresh above already happened; no
		// new timeline row, and no second DTMF append. A retry whose
		// original attempt died after the event insert may still owe a
		// recording registration.
		p.stats.Duplicates.Add(1)
		if err := p.ensureRecording(ctx, org.OrgID, call, eventType, delivery); err != nil {
			return nil, err
		}
		return &Outcome{Status: StatusOK, Call: call}, nil
	}

	p.stats.Accepted.Add(1)

	if eventType == models.EventDTMF {
		if digit := delivery.str("digit"); digit != "" {
			call, err = p.calls.Upsert(ctx, org.OrgID, delivery.ExternalCallID(),
				database.PartialCallLog{DTMFAppend: digit, LastPayload: delivery.RawPayload})
			if err != nil {
				return nil, fmt.Errorf("appending dtmf digit: %w", err)
			}
		}
	}

	if eventType == models.EventRecordingAvailable {
		if err := p.registerRecording(ctx, org.OrgID, call, delivery); err != nil {
			return nil, err
		}
	}

	p.auditSink.Record(ctx, audit.Entry{
		OrgID:        org.OrgID,
		Actor:        audit.SystemActor,
		Action:       "call_event_applied",
		ResourceType: "call",
		ResourceID:   fmt.Sprint(call.ID),
		EventType:    string(eventType),
		Payload:      delivery.RawPayload,
	})

	return &Outcome{Status: StatusOK, Accepted: true, Call: call}, nil
}

// refreshFields builds the aggregate merge input for one delivery. Every
// field here is safe to reapply on a provider retry: last-non-empty-wins
// fields, the monotonic state, and set-once timestamps. DTMF is excluded
// because appending twice is observable.
func (p *Processor) refreshFields(d *Delivery, state models.CallState, eventType models.EventType) database.PartialCallLog {
	fields := database.PartialCallLog{
		Direction:     d.str("direction"),
		FromAddr:      d.str("from"),
		ToAddr:        d.str("to"),
		CallState:     state,
		LastEventType: d.RawEventType,
		DurationSecs:  d.intField("duration_secs"),
		RecordingURL:  d.str("recording_url"),
		Disposition:   d.str("hangup_cause"),
		LastPayload:   d.RawPayload,
	}

	switch eventType {
	case models.EventCallAnswered:
		fields.AnsweredAt = d.OccurredAt
	case models.EventCallEnded:
		fields.EndedAt = d.OccurredAt
	}

	return fields
}

// ensureRecording runs on the duplicate path: if the original attempt at
// a recording-available delivery failed after its event row was accepted,
// the Recording row is still missing and the provider retry creates it.
func (p *Processor) ensureRecording(ctx context.Context, orgID string, call *models.CallLog, eventType models.EventType, d *Delivery) error {
	if eventType != models.EventRecordingAvailable {
		return nil
	}

	existing, err := p.recordings.ListByCall(ctx, orgID, call.ID)
	if err != nil {
		return fmt.Errorf("checking recording registration: %w", err)
	}
	for i := range existing {
		if existing[i].ProviderRecordingID == d.str("recording_id") &&
			existing[i].URL == d.str("recording_url") {
			return nil
		}
	}
	return p.registerRecording(ctx, orgID, call, d)
}

// registerRecording creates the Recording row for an accepted
// recording-available event, resolving the org's retention policy from
// the call's classification.
func (p *Processor) registerRecording(ctx context.Context, orgID string, call *models.CallLog, d *Delivery) error {
	classification := "operational"
	if call.Direction == "outbound" {
		classification = "billing"
	}

	policy, err := p.policies.Lookup(ctx, orgID, classification)
	if err != nil {
		return fmt.Errorf("resolving retention policy: %w", err)
	}

	occurred := time.Now().UTC()
	if d.OccurredAt != nil {
		occurred = *d.OccurredAt
	}

	rec := &models.Recording{
		OrgID:               orgID,
		CallID:              call.ID,
		ProviderRecordingID: d.str("recording_id"),
		URL:                 d.str("recording_url"),
		Classification:      classification,
		RetentionPolicy:     policy.Ref,
		RetainUntil:         occurred.AddDate(0, 0, policy.Days),
	}
	if err := p.recordings.Create(ctx, rec); err != nil {
		return fmt.Errorf("registering recording: %w", err)
	}

	p.logger.Info("recording registered",
		"org_id", orgID, "call_id", call.ID, "recording_id", rec.ID,
		"retention_policy", policy.Ref)
	return nil
}
