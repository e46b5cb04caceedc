package database

import (
	"context"
	"time"

	"github.com/calltrail/calltrail/internal/database/models"
)

// OrgRepository manages the provider-account-to-tenant mapping.
type OrgRepository interface {
	Create(ctx context.Context, org *models.Org) error
	GetByProviderAccountID(ctx context.Context, accountID string) (*models.Org, error)
	GetByOrgID(ctx context.Context, orgID string) (*models.Org, error)
	List(ctx context.Context) ([]models.Org, error)
}

// PartialCallLog carries the fields of a single delivery to merge into a
// call aggregate. Empty or nil fields never blank out existing values;
// CallState advances monotonically; DTMFAppend appends; AnsweredAt and
// EndedAt are set once and never overwritten.
type PartialCallLog struct {
	Direction     string
	FromAddr      string
	ToAddr        string
	CallState     models.CallState
	LastEventType string
	DTMFAppend    string
	DurationSecs  *int
	RecordingURL  string
	Disposition   string
	AnsweredAt    *time.Time
	EndedAt       *time.Time
	LastPayload   string
}

// CallListFilter specifies filtering and pagination for call list queries.
type CallListFilter struct {
	Limit     int
	Offset    int
	Search    string // matches from_addr, to_addr, or external_call_id
	Direction string
	State     string
	StartDate string
	EndDate   string
}

// CallLogRepository owns the durable current view of each call.
type CallLogRepository interface {
	// Upsert creates the aggregate row for (orgID, externalCallID) if
	// absent, otherwise merges the incoming fields over the existing row.
	// The read-merge-write runs inside one transaction.
	Upsert(ctx context.Context, orgID, externalCallID string, fields PartialCallLog) (*models.CallLog, error)
	GetByID(ctx context.Context, orgID string, id int64) (*models.CallLog, error)
	GetByExternalID(ctx context.Context, orgID, externalCallID string) (*models.CallLog, error)
	List(ctx context.Context, orgID string, filter CallListFilter) ([]models.CallLog, int, error)
	CountByState(ctx context.Context) (map[string]int64, error)
}

// CallEventRepository is the idempotent event store backing the timeline.
type CallEventRepository interface {
	// TryAccept atomically inserts the event unless its idempotency key
	// already exists. It returns accepted=false with the pre-existing row
	// when the delivery is a duplicate; a losing concurrent insert is a
	// successful duplicate detection, not an error.
	TryAccept(ctx context.Context, ev *models.CallEvent) (accepted bool, existing *models.CallEvent, err error)
	ListByCall(ctx context.Context, orgID string, callID int64) ([]models.CallEvent, error)
	Count(ctx context.Context) (int64, error)
}

// RecordingRepository manages recording registrations.
type RecordingRepository interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, orgID string, id int64) (*models.Recording, error)
	ListByCall(ctx context.Context, orgID string, callID int64) ([]models.Recording, error)
	// ListExpired returns recordings whose retain_until has passed.
	ListExpired(ctx context.Context, now time.Time) ([]models.Recording, error)
	Delete(ctx context.Context, id int64) error
}

// OutboundEventRepository manages the outbound work queue.
type OutboundEventRepository interface {
	Create(ctx context.Context, ev *models.OutboundEvent) error
	GetByID(ctx context.Context, orgID, id string) (*models.OutboundEvent, error)
	UpdateStatus(ctx context.Context, id, status string) error
	List(ctx context.Context, orgID string, limit, offset int) ([]models.OutboundEvent, int, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// DeliveryAttemptRepository records provider call attempts. Append-only.
type DeliveryAttemptRepository interface {
	Create(ctx context.Context, att *models.DeliveryAttempt) error
	ListByEvent(ctx context.Context, eventID string) ([]models.DeliveryAttempt, error)
}

// LegalHoldRepository manages legal holds on org resources.
type LegalHoldRepository interface {
	Create(ctx context.Context, hold *models.LegalHold) error
	Release(ctx context.Context, orgID string, id int64) error
	// Active returns the active hold on the resource, or nil when none.
	Active(ctx context.Context, orgID, resourceType, resourceID string) (*models.LegalHold, error)
	List(ctx context.Context, orgID string) ([]models.LegalHold, error)
}

// TranscriptRepository manages call transcripts.
type TranscriptRepository interface {
	Create(ctx context.Context, tr *models.Transcript) error
	ListByCall(ctx context.Context, orgID string, callID int64) ([]models.Transcript, error)
}
