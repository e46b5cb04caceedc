package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/calltrail/calltrail/internal/database/models"
)

// callLogRepo implements CallLogRepository.
type callLogRepo struct {
	db *DB
}

// NewCallLogRepository creates a new CallLogRepository.
func NewCallLogRepository(db *DB) CallLogRepository {
	return &callLogRepo{db: db}
}

const callLogCols = `id, org_id, external_call_id, direction, from_addr, to_addr,
	 call_state, last_event_type, dtmf_digits, duration_secs, recording_url,
	 disposition, answered_at, ended_at, last_payload, created_at, updated_at`

// Upsert creates or merges the call aggregate for (orgID, externalCallID).
// The read-merge-write happens inside a single transaction; together with
// the single writer connection this serializes concurrent merges for the
// same call.
func (r *callLogRepo) Upsert(ctx context.Context, orgID, externalCallID string, fields PartialCallLog) (*models.CallLog, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	var existing *models.CallLog
	if externalCallID != "" {
		existing, err = scanCallLog(tx.QueryRowContext(ctx,
			`SELECT `+callLogCols+` FROM call_logs
			 WHERE org_id = ? AND external_call_id = ?`, orgID, externalCallID))
		if err != nil {
			return nil, err
		}
	}

	if existing == nil {
		created, err := insertCallLog(ctx, tx, orgID, externalCallID, fields)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing call insert: %w", err)
		}
		return created, nil
	}

	merged := MergeCallLog(*existing, fields)
	_, err = tx.ExecContext(ctx,
		`UPDATE call_logs SET direction = ?, from_addr = ?, to_addr = ?,
		 call_state = ?, last_event_type = ?, dtmf_digits = ?, duration_secs = ?,
		 recording_url = ?, disposition = ?, answered_at = ?, ended_at = ?,
		 last_payload = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		merged.Direction, merged.FromAddr, merged.ToAddr,
		string(merged.CallState), merged.LastEventType, merged.DTMFDigits,
		merged.DurationSecs, merged.RecordingURL, merged.Disposition,
		merged.AnsweredAt, merged.EndedAt, merged.LastPayload, merged.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating call log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing call merge: %w", err)
	}
	return &merged, nil
}

// insertCallLog creates a fresh aggregate row from the delivery's fields.
func insertCallLog(ctx context.Context, tx *sql.Tx, orgID, externalCallID string, fields PartialCallLog) (*models.CallLog, error) {
	state := fields.CallState
	if state == "" {
		state = models.StateUnknown
	}
	payload := fields.LastPayload
	if payload == "" {
		payload = "{}"
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO call_logs (org_id, external_call_id, direction, from_addr,
		 to_addr, call_state, last_event_type, dtmf_digits, duration_secs,
		 recording_url, disposition, answered_at, ended_at, last_payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orgID, externalCallID, fields.Direction, fields.FromAddr, fields.ToAddr,
		string(state), fields.LastEventType, fields.DTMFAppend, fields.DurationSecs,
		fields.RecordingURL, fields.Disposition, fields.AnsweredAt, fields.EndedAt,
		payload,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting call log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting last insert id: %w", err)
	}

	return scanCallLog(tx.QueryRowContext(ctx,
		`SELECT `+callLogCols+` FROM call_logs WHERE id = ?`, id))
}

// MergeCallLog applies a delivery's fields over an existing aggregate.
// Per-field policy: last-non-empty-wins, except call_state (monotonic max
// over the lifecycle order), dtmf_digits (append), and answered_at /
// ended_at (set once). The payload snapshot is always refreshed so
// operators see the freshest delivery even when nothing else changed.
func MergeCallLog(existing models.CallLog, fields PartialCallLog) models.CallLog {
	out := existing

	if fields.Direction != "" {
		out.Direction = fields.Direction
	}
	if fields.FromAddr != "" {
		out.FromAddr = fields.FromAddr
	}
	if fields.ToAddr != "" {
		out.ToAddr = fields.ToAddr
	}
	if fields.CallState.Rank() > existing.CallState.Rank() {
		out.CallState = fields.CallState
	}
	if fields.LastEventType != "" {
		out.LastEventType = fields.LastEventType
	}
	if fields.DTMFAppend != "" {
		out.DTMFDigits = existing.DTMFDigits + fields.DTMFAppend
	}
	if fields.DurationSecs != nil {
		out.DurationSecs = fields.DurationSecs
	}
	if fields.RecordingURL != "" {
		out.RecordingURL = fields.RecordingURL
	}
	if fields.Disposition != "" {
		out.Disposition = fields.Disposition
	}
	if existing.AnsweredAt == nil && fields.AnsweredAt != nil {
		out.AnsweredAt = fields.AnsweredAt
	}
	if existing.EndedAt == nil && fields.EndedAt != nil {
		out.EndedAt = fields.EndedAt
	}
	if fields.LastPayload != "" {
		out.LastPayload = fields.LastPayload
	}

	return out
}

// GetByID returns a call by ID within the org scope.
func (r *callLogRepo) GetByID(ctx context.Context, orgID string, id int64) (*models.CallLog, error) {
	return scanCallLog(r.db.QueryRowContext(ctx,
		`SELECT `+callLogCols+` FROM call_logs WHERE org_id = ? AND id = ?`,
		orgID, id))
}

// GetByExternalID returns a call by its provider-assigned external id.
func (r *callLogRepo) GetByExternalID(ctx context.Context, orgID, externalCallID string) (*models.CallLog, error) {
	return scanCallLog(r.db.QueryRowContext(ctx,
		`SELECT `+callLogCols+` FROM call_logs
		 WHERE org_id = ? AND external_call_id = ?`, orgID, externalCallID))
}

// List returns calls matching the filter, along with the total count.
func (r *callLogRepo) List(ctx context.Context, orgID string, filter CallListFilter) ([]models.CallLog, int, error) {
	where := "org_id = ?"
	args := []any{orgID}

	if filter.Direction != "" {
		where += " AND direction = ?"
		args = append(args, filter.Direction)
	}
	if filter.State != "" {
		where += " AND call_state = ?"
		args = append(args, filter.State)
	}
	if filter.Search != "" {
		where += " AND (from_addr LIKE ? OR to_addr LIKE ? OR external_call_id LIKE ?)"
		s := "%" + filter.Search + "%"
		args = append(args, s, s, s)
	}
	if filter.StartDate != "" {
		where += " AND created_at >= ?"
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where += " AND created_at <= ?"
		args = append(args, filter.EndDate)
	}

	// Count total matching rows.
	var total int
	countQuery := "SELECT COUNT(*) FROM call_logs WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting calls: %w", err)
	}

	// Fetch the page of results.
	query := `SELECT ` + callLogCols + ` FROM call_logs WHERE ` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing calls: %w", err)
	}
	defer rows.Close()

	var calls []models.CallLog
	for rows.Next() {
		c, err := scanCallLogRow(rows)
		if err != nil {
			return nil, 0, err
		}
		calls = append(calls, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating call rows: %w", err)
	}

	return calls, total, nil
}

// CountByState returns call counts grouped by call_state, across all orgs.
// Used by the metrics collector.
func (r *callLogRepo) CountByState(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT call_state, COUNT(*) FROM call_logs GROUP BY call_state`)
	if err != nil {
		return nil, fmt.Errorf("counting calls by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scanning state count: %w", err)
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state counts: %w", err)
	}
	return counts, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCallLog(row *sql.Row) (*models.CallLog, error) {
	c, err := scanCallLogInto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call log: %w", err)
	}
	return c, nil
}

func scanCallLogRow(rows *sql.Rows) (*models.CallLog, error) {
	c, err := scanCallLogInto(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning call log row: %w", err)
	}
	return c, nil
}

func scanCallLogInto(s rowScanner) (*models.CallLog, error) {
	var c models.CallLog
	var state string
	err := s.Scan(&c.ID, &c.OrgID, &c.ExternalCallID, &c.Direction, &c.FromAddr,
		&c.ToAddr, &state, &c.LastEventType, &c.DTMFDigits, &c.DurationSecs,
		&c.RecordingURL, &c.Disposition, &c.AnsweredAt, &c.EndedAt,
		&c.LastPayload, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.CallState = models.CallState(state)
	return &c, nil
}
