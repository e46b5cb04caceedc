package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/calltrail/calltrail/internal/errs"
)

// envelope is the provider's delivery format. Current deliveries nest the
// event under "data"; older provider formats put the payload at the top
// level, accepted as a fallback.
type envelope struct {
	Data struct {
		EventType  string         `json:"event_type"`
		ID         string         `json:"id"`
		OccurredAt string         `json:"occurred_at"`
		Payload    map[string]any `json:"payload"`
	} `json:"data"`
	Payload map[string]any `json:"payload"`
}

// Delivery is one decoded webhook delivery.
type Delivery struct {
	RawEventType    string
	ProviderEventID string
	OccurredAt      *time.Time
	Payload         map[string]any
	RawPayload      string // JSON snapshot of the payload for the aggregate
}

// ParseDelivery decodes a raw webhook body into a Delivery.
func ParseDelivery(rawBody []byte) (*Delivery, error) {
	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, errs.Validationf("decoding webhook body: %v", err)
	}

	d := &Delivery{
		RawEventType:    env.Data.EventType,
		ProviderEventID: env.Data.ID,
		Payload:         env.Data.Payload,
	}
	if d.Payload == nil {
		d.Payload = env.Payload
	}
	if d.Payload == nil {
		d.Payload = map[string]any{}
	}

	if env.Data.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339, env.Data.OccurredAt)
		if err != nil {
			return nil, errs.Validationf("parsing occurred_at %q: %v", env.Data.OccurredAt, err)
		}
		utc := t.UTC()
		d.OccurredAt = &utc
	}

	snapshot, err := json.Marshal(d.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload snapshot: %w", err)
	}
	d.RawPayload = string(snapshot)

	return d, nil
}

// str returns the payload field as a string, or "" when absent or not a
// string.
func (d *Delivery) str(key string) string {
	if v, ok := d.Payload[key].(string); ok {
		return v
	}
	return ""
}

// intField returns the payload field as an int pointer, or nil when
// absent. JSON numbers decode as float64.
func (d *Delivery) intField(key string) *int {
	if v, ok := d.Payload[key].(float64); ok {
		n := int(v)
		return &n
	}
	return nil
}

// AccountID is the provider account the delivery belongs to.
func (d *Delivery) AccountID() string { return d.str("account_id") }

// ExternalCallID is the provider-assigned call identifier. Deliveries
// that precede assignment carry none.
func (d *Delivery) ExternalCallID() string {
	if v := d.str("call_id"); v != "" {
		return v
	}
	return d.str("call_control_id")
}
