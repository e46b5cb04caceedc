package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/calltrail/calltrail/internal/database/models"
)

// recordingRepo implements RecordingRepository.
type recordingRepo struct {
	db *DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *DB) RecordingRepository {
	return &recordingRepo{db: db}
}

const recordingCols = `id, org_id, call_id, provider_recording_id, url,
	 classification, retention_policy, retain_until, created_at`

// Create registers a new recording.
func (r *recordingRepo) Create(ctx context.Context, rec *models.Recording) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO recordings (org_id, call_id, provider_recording_id, url,
		 classification, retention_policy, retain_until)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.OrgID, rec.CallID, rec.ProviderRecordingID, rec.URL,
		rec.Classification, rec.RetentionPolicy, rec.RetainUntil,
	)
	if err != nil {
		return fmt.Errorf("inserting recording: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// GetByID returns a recording by ID within the org scope.
func (r *recordingRepo) GetByID(ctx context.Context, orgID string, id int64) (*models.Recording, error) {
	return scanRecording(r.db.QueryRowContext(ctx,
		`SELECT `+recordingCols+` FROM recordings WHERE org_id = ? AND id = ?`,
		orgID, id))
}

// ListByCall returns all recordings for a call.
func (r *recordingRepo) ListByCall(ctx context.Context, orgID string, callID int64) ([]models.Recording, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordingCols+` FROM recordings
		 WHERE org_id = ? AND call_id = ? ORDER BY id`, orgID, callID)
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	defer rows.Close()

	return collectRecordings(rows)
}

// ListExpired returns recordings whose retention window has passed.
func (r *recordingRepo) ListExpired(ctx context.Context, now time.Time) ([]models.Recording, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordingCols+` FROM recordings WHERE retain_until < ?`, now)
	if err != nil {
		return nil, fmt.Errorf("listing expired recordings: %w", err)
	}
	defer rows.Close()

	return collectRecordings(rows)
}

// Delete removes a recording row. Only the retention cleanup calls this;
// the call aggregate itself is never deleted.
func (r *recordingRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	return nil
}

func collectRecordings(rows *sql.Rows) ([]models.Recording, error) {
	var recs []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.OrgID, &rec.CallID,
			&rec.ProviderRecordingID, &rec.URL, &rec.Classification,
			&rec.RetentionPolicy, &rec.RetainUntil, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning recording row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recording rows: %w", err)
	}
	return recs, nil
}

func scanRecording(row *sql.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.OrgID, &rec.CallID, &rec.ProviderRecordingID,
		&rec.URL, &rec.Classification, &rec.RetentionPolicy, &rec.RetainUntil,
		&rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning recording: %w", err)
	}
	return &rec, nil
}
