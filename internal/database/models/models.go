package models

import "time"

// CallState is the canonical lifecycle state of a call. States form a
// total order (Initiated < Answered < Bridged < Ended) used by the
// monotonic merge policy: a call aggregate always reflects the
// most-advanced state seen, never arrival order.
type CallState string

const (
	StateUnknown   CallState = "unknown"
	StateInitiated CallState = "initiated"
	StateAnswered  CallState = "answered"
	StateBridged   CallState = "bridged"
	StateEnded     CallState = "ended"
)

// Rank returns the position of the state in the lifecycle total order.
// Unknown ranks below every real state so it never overwrites one.
func (s CallState) Rank() int {
	switch s {
	case StateInitiated:
		return 1
	case StateAnswered:
		return 2
	case StateBridged:
		return 3
	case StateEnded:
		return 4
	default:
		return 0
	}
}

// EventType is the canonical, provider-agnostic event taxonomy.
type EventType string

const (
	EventUnknown            EventType = "unknown"
	EventCallInitiated      EventType = "call_initiated"
	EventCallAnswered       EventType = "call_answered"
	EventCallBridged        EventType = "call_bridged"
	EventCallEnded          EventType = "call_ended"
	EventRecordingAvailable EventType = "recording_available"
	EventPlaybackComplete   EventType = "playback_complete"
	EventDTMF               EventType = "dtmf"
)

// CallLog is the call aggregate: one row per physical call, keyed by the
// org-scoped external call id assigned by the provider. Rows are never
// deleted; "ended" is a state value, not a deletion.
type CallLog struct {
	ID             int64
	OrgID          string
	ExternalCallID string // may be empty for deliveries that precede assignment
	Direction      string // "inbound" | "outbound"
	FromAddr       string
	ToAddr         string
	CallState      CallState
	LastEventType  string // last raw provider event type seen
	DTMFDigits     string
	DurationSecs   *int
	RecordingURL   string
	Disposition    string
	AnsweredAt     *time.Time
	EndedAt        *time.Time
	LastPayload    string // JSON snapshot of the most recent delivery payload
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CallEvent is an immutable timeline entry: one row per accepted
// (non-duplicate) webhook delivery applied to a CallLog.
type CallEvent struct {
	ID              int64
	OrgID           string
	CallID          int64
	ExternalCallID  string
	EventType       EventType
	ProviderEventID string // may be empty for older provider formats
	OccurredAt      *time.Time
	Payload         string // JSON
	CreatedAt       time.Time
}

// Recording is created when a recording-available event is accepted.
// One call may have multiple recordings (re-records, segments).
type Recording struct {
	ID                  int64
	OrgID               string
	CallID              int64
	ProviderRecordingID string
	URL                 string
	Classification      string // "billing" | "operational"
	RetentionPolicy     string // reference resolved at registration time
	RetainUntil         time.Time
	CreatedAt           time.Time
}

// OutboundEvent is one logical unit of outbound work ("send this SMS").
// Its current status is derived from the latest delivery attempt; the
// retry_queued status is set only by explicit operator action.
type OutboundEvent struct {
	ID        string // uuid
	OrgID     string
	Channel   string // "sms" | "fax" | "voice"
	Recipient string
	Body      string
	MediaURL  string
	Status    string // "queued" | "sent" | "failed" | "retry_queued"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OutboundEvent status values.
const (
	OutboundQueued      = "queued"
	OutboundSent        = "sent"
	OutboundFailed      = "failed"
	OutboundRetryQueued = "retry_queued"
)

// DeliveryAttempt records one concrete try at invoking the provider for
// an OutboundEvent, including retries. Append-only.
type DeliveryAttempt struct {
	ID        int64
	EventID   string
	Provider  string
	Outcome   string // "sent" | "failed"
	Response  string // JSON provider response, if any
	Error     string
	CreatedAt time.Time
}

// LegalHold prevents mutation of a specific resource pending review.
// A hold is active while released_at is null.
type LegalHold struct {
	ID           int64
	OrgID        string
	ResourceType string
	ResourceID   string
	Reason       string
	CreatedAt    time.Time
	ReleasedAt   *time.Time
}

// Transcript is the text attached to a call, created only through the
// policy-gated transcript operation.
type Transcript struct {
	ID          int64
	OrgID       string
	CallID      int64
	RecordingID *int64
	Text        string
	Confidence  float64
	CreatedAt   time.Time
}

// Org maps a provider account to a tenant. Webhook deliveries that do not
// resolve to an org are soft-skipped.
type Org struct {
	ID                int64
	OrgID             string
	Name              string
	ProviderAccountID string
	TelephonyEnabled  bool
	CreatedAt         time.Time
}
