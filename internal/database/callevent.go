package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/calltrail/calltrail/internal/database/models"
)

// callEventRepo implements CallEventRepository.
type callEventRepo struct {
	db *DB
}

// NewCallEventRepository creates a new CallEventRepository.
func NewCallEventRepository(db *DB) CallEventRepository {
	return &callEventRepo{db: db}
}

const callEventCols = `id, org_id, call_id, external_call_id, event_type,
	 provider_event_id, occurred_at, payload, created_at`

// TryAccept inserts the event unless its idempotency key already exists.
// The check and the insert are one statement (insert-on-conflict against
// the unique indexes), so two concurrent deliveries of the same event
// cannot both be accepted; the loser sees rows-affected 0 and reads back
// the winner's row.
//
// Key selection: (org_id, provider_event_id) when the provider supplied an
// event id, otherwise (org_id, external_call_id, event_type, occurred_at).
// The fallback cannot distinguish two genuinely distinct events of the
// same type at the same timestamp; that matches the provider contract and
// is accepted as-is. Fallback rows with a null occurred_at never collide.
func (r *callEventRepo) TryAccept(ctx context.Context, ev *models.CallEvent) (bool, *models.CallEvent, error) {
	payload := ev.Payload
	if payload == "" {
		payload = "{}"
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO call_events (org_id, call_id, external_call_id, event_type,
		 provider_event_id, occurred_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		ev.OrgID, ev.CallID, ev.ExternalCallID, string(ev.EventType),
		ev.ProviderEventID, ev.OccurredAt, payload,
	)
	if err != nil {
		return false, nil, fmt.Errorf("inserting call event: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("getting rows affected: %w", err)
	}

	if n == 0 {
		existing, err := r.findExisting(ctx, ev)
		if err != nil {
			return false, nil, err
		}
		if existing == nil {
			// Conflict fired but the row is gone; should not happen since
			// events are append-only.
			return false, nil, fmt.Errorf("duplicate call event not found after conflict")
		}
		return false, existing, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, nil, fmt.Errorf("getting last insert id: %w", err)
	}
	ev.ID = id
	return true, nil, nil
}

// findExisting locates the previously accepted row for the event's
// idempotency key.
func (r *callEventRepo) findExisting(ctx context.Context, ev *models.CallEvent) (*models.CallEvent, error) {
	var row *sql.Row
	if ev.ProviderEventID != "" {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+callEventCols+` FROM call_events
			 WHERE org_id = ? AND provider_event_id = ?`,
			ev.OrgID, ev.ProviderEventID)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+callEventCols+` FROM call_events
			 WHERE org_id = ? AND external_call_id = ? AND event_type = ?
			 AND occurred_at = ? AND provider_event_id = ''`,
			ev.OrgID, ev.ExternalCallID, string(ev.EventType), ev.OccurredAt)
	}
	return scanCallEvent(row)
}

// ListByCall returns the ordered timeline for a call. Events are ordered
// by provider occurrence time, then insertion order; events without an
// occurrence time sort first.
func (r *callEventRepo) ListByCall(ctx context.Context, orgID string, callID int64) ([]models.CallEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+callEventCols+` FROM call_events
		 WHERE org_id = ? AND call_id = ?
		 ORDER BY occurred_at, id`, orgID, callID)
	if err != nil {
		return nil, fmt.Errorf("listing call events: %w", err)
	}
	defer rows.Close()

	var events []models.CallEvent
	for rows.Next() {
		var e models.CallEvent
		var eventType string
		if err := rows.Scan(&e.ID, &e.OrgID, &e.CallID, &e.ExternalCallID,
			&eventType, &e.ProviderEventID, &e.OccurredAt, &e.Payload,
			&e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning call event row: %w", err)
		}
		e.EventType = models.EventType(eventType)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call event rows: %w", err)
	}

	return events, nil
}

// Count returns the total number of accepted events. Used by the metrics
// collector.
func (r *callEventRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting call events: %w", err)
	}
	return n, nil
}

func scanCallEvent(row *sql.Row) (*models.CallEvent, error) {
	var e models.CallEvent
	var eventType string
	err := row.Scan(&e.ID, &e.OrgID, &e.CallID, &e.ExternalCallID, &eventType,
		&e.ProviderEventID, &e.OccurredAt, &e.Payload, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call event: %w", err)
	}
	e.EventType = models.EventType(eventType)
	return &e, nil
}
