package database

import (
	"context"
	"fmt"

	"github.com/calltrail/calltrail/internal/database/models"
)

// transcriptRepo implements TranscriptRepository.
type transcriptRepo struct {
	db *DB
}

// NewTranscriptRepository creates a new TranscriptRepository.
func NewTranscriptRepository(db *DB) TranscriptRepository {
	return &transcriptRepo{db: db}
}

// Create inserts a transcript.
func (r *transcriptRepo) Create(ctx context.Context, tr *models.Transcript) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO transcripts (org_id, call_id, recording_id, text, confidence)
		 VALUES (?, ?, ?, ?, ?)`,
		tr.OrgID, tr.CallID, tr.RecordingID, tr.Text, tr.Confidence,
	)
	if err != nil {
		return fmt.Errorf("inserting transcript: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	tr.ID = id
	return nil
}

// ListByCall returns all transcripts for a call.
func (r *transcriptRepo) ListByCall(ctx context.Context, orgID string, callID int64) ([]models.Transcript, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, call_id, recording_id, text, confidence, created_at
		 FROM transcripts WHERE org_id = ? AND call_id = ? ORDER BY id`,
		orgID, callID)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	defer rows.Close()

	var transcripts []models.Transcript
	for rows.Next() {
		var tr models.Transcript
		if err := rows.Scan(&tr.ID, &tr.OrgID, &tr.CallID, &tr.RecordingID,
			&tr.Text, &tr.Confidence, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transcript row: %w", err)
		}
		transcripts = append(transcripts, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript rows: %w", err)
	}

	return transcripts, nil
}
