package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/calltrail/calltrail/internal/database/models"
)

// outboundEventRepo implements OutboundEventRepository.
type outboundEventRepo struct {
	db *DB
}

// NewOutboundEventRepository creates a new OutboundEventRepository.
func NewOutboundEventRepository(db *DB) OutboundEventRepository {
	return &outboundEventRepo{db: db}
}

const outboundEventCols = `id, org_id, channel, recipient, body, media_url,
	 status, created_at, updated_at`

// Create inserts a new outbound event, normally in queued status.
func (r *outboundEventRepo) Create(ctx context.Context, ev *models.OutboundEvent) error {
	status := ev.Status
	if status == "" {
		status = models.OutboundQueued
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outbound_events (id, org_id, channel, recipient, body,
		 media_url, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OrgID, ev.Channel, ev.Recipient, ev.Body, ev.MediaURL, status,
	)
	if err != nil {
		return fmt.Errorf("inserting outbound event: %w", err)
	}
	ev.Status = status
	return nil
}

// GetByID returns an outbound event by ID within the org scope.
func (r *outboundEventRepo) GetByID(ctx context.Context, orgID, id string) (*models.OutboundEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+outboundEventCols+` FROM outbound_events
		 WHERE org_id = ? AND id = ?`, orgID, id)

	var ev models.OutboundEvent
	err := row.Scan(&ev.ID, &ev.OrgID, &ev.Channel, &ev.Recipient, &ev.Body,
		&ev.MediaURL, &ev.Status, &ev.CreatedAt, &ev.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning outbound event: %w", err)
	}
	return &ev, nil
}

// UpdateStatus sets the event's derived status.
func (r *outboundEventRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbound_events SET status = ?, updated_at = datetime('now')
		 WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating outbound event status: %w", err)
	}
	return nil
}

// List returns outbound events for an org, newest first, with the total count.
func (r *outboundEventRepo) List(ctx context.Context, orgID string, limit, offset int) ([]models.OutboundEvent, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbound_events WHERE org_id = ?`, orgID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting outbound events: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboundEventCols+` FROM outbound_events
		 WHERE org_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		orgID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing outbound events: %w", err)
	}
	defer rows.Close()

	var events []models.OutboundEvent
	for rows.Next() {
		var ev models.OutboundEvent
		if err := rows.Scan(&ev.ID, &ev.OrgID, &ev.Channel, &ev.Recipient,
			&ev.Body, &ev.MediaURL, &ev.Status, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning outbound event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating outbound event rows: %w", err)
	}

	return events, total, nil
}

// CountByStatus returns outbound event counts grouped by status, across
// all orgs. Used by the metrics collector.
func (r *outboundEventRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM outbound_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting outbound events by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}
	return counts, nil
}

// deliveryAttemptRepo implements DeliveryAttemptRepository.
type deliveryAttemptRepo struct {
	db *DB
}

// NewDeliveryAttemptRepository creates a new DeliveryAttemptRepository.
func NewDeliveryAttemptRepository(db *DB) DeliveryAttemptRepository {
	return &deliveryAttemptRepo{db: db}
}

// Create appends a delivery attempt record.
func (r *deliveryAttemptRepo) Create(ctx context.Context, att *models.DeliveryAttempt) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO delivery_attempts (event_id, provider, outcome, response, error)
		 VALUES (?, ?, ?, ?, ?)`,
		att.EventID, att.Provider, att.Outcome, att.Response, att.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	att.ID = id
	return nil
}

// ListByEvent returns all attempts for an outbound event in attempt order.
func (r *deliveryAttemptRepo) ListByEvent(ctx context.Context, eventID string) ([]models.DeliveryAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, provider, outcome, response, error, created_at
		 FROM delivery_attempts WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		var att models.DeliveryAttempt
		if err := rows.Scan(&att.ID, &att.EventID, &att.Provider, &att.Outcome,
			&att.Response, &att.Error, &att.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning delivery attempt row: %w", err)
		}
		attempts = append(attempts, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery attempt rows: %w", err)
	}

	return attempts, nil
}
