package outbound

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/database"
	"github.com/calltrail/calltrail/internal/database/models"
	"github.com/calltrail/calltrail/internal/errs"
	"github.com/google/uuid"
)

// Dispatcher performs outbound sends and keeps the durable attempt
// history. Every send creates exactly one event row at queued status
// before the provider is invoked, then one delivery attempt row per
// provider call. Failures are recorded first and reported second, so a
// failed billable send always leaves a retry basis behind.
type Dispatcher struct {
	events   database.OutboundEventRepository
	attempts database.DeliveryAttemptRepository
	sender   Sender
	sink     audit.Sink
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(events database.OutboundEventRepository, attempts database.DeliveryAttemptRepository, sender Sender, sink audit.Sink, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		events:   events,
		attempts: attempts,
		sender:   sender,
		sink:     sink,
		logger:   logger.With("component", "outbound"),
	}
}

// Send performs one outbound send for the org, durably recording the
// event and the attempt outcome. On failure the triggering error is
// returned to the caller after it has been recorded; nothing retries
// in-process, since a silent retry of a billable send is worse than a
// surfaced failure.
func (d *Dispatcher) Send(ctx context.Context, orgID string, actor string, req SendRequest) (*models.OutboundEvent, error) {
	ev := &models.OutboundEvent{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Channel:   req.Channel,
		Recipient: req.Recipient,
		Body:      req.Body,
		MediaURL:  req.MediaURL,
		Status:    models.OutboundQueued,
	}
	if err := d.events.Create(ctx, ev); err != nil {
		return nil, err
	}

	msgID, response, sendErr := d.sender.Send(ctx, req)

	att := &models.DeliveryAttempt{
		EventID:  ev.ID,
		Provider: d.sender.Name(),
		Response: response,
	}
	status := models.OutboundSent
	if sendErr != nil {
		att.Outcome = models.OutboundFailed
		att.Error = sendErr.Error()
		status = models.OutboundFailed
	} else {
		att.Outcome = models.OutboundSent
	}

	var recordErr error
	if err := d.attempts.Create(ctx, att); err != nil {
		// The send may have gone out, but without the attempt row there
		// is no durable record of it. That is a failure of this
		// operation, not a log line.
		recordErr = fmt.Errorf("recording delivery attempt: %w", err)
		d.logger.Error("failed to record delivery attempt",
			"error", err, "event_id", ev.ID)
	}
	if err := d.events.UpdateStatus(ctx, ev.ID, status); err != nil {
		d.logger.Error("failed to update outbound event status",
			"error", err, "event_id", ev.ID)
	}
	ev.Status = status

	d.sink.Record(ctx, audit.Entry{
		OrgID:        orgID,
		Actor:        actor,
		Action:       "outbound_send",
		ResourceType: "outbound_event",
		ResourceID:   ev.ID,
		EventType:    req.Channel,
	})

	if sendErr != nil {
		d.logger.Warn("outbound send failed",
			"event_id", ev.ID, "channel", req.Channel, "error", sendErr)
		return ev, sendErr
	}
	if recordErr != nil {
		return ev, recordErr
	}

	d.logger.Info("outbound send delivered",
		"event_id", ev.ID, "channel", req.Channel, "provider_message_id", msgID)
	return ev, nil
}

// Retry marks a failed event as queued for retry. It does not re-invoke
// the provider; that is a separate operational trigger.
func (d *Dispatcher) Retry(ctx context.Context, orgID, eventID, actor string) (*models.OutboundEvent, error) {
	ev, err := d.events.GetByID(ctx, orgID, eventID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, errs.NotFound("event", eventID)
	}
	if ev.Status != models.OutboundFailed {
		return nil, errs.Validationf("event %s is %s, only failed events can be retried", eventID, ev.Status)
	}

	if err := d.events.UpdateStatus(ctx, ev.ID, models.OutboundRetryQueued); err != nil {
		return nil, err
	}
	ev.Status = models.OutboundRetryQueued

	d.sink.Record(ctx, audit.Entry{
		OrgID:        orgID,
		Actor:        actor,
		Action:       "outbound_retry_queued",
		ResourceType: "outbound_event",
		ResourceID:   ev.ID,
	})

	return ev, nil
}
