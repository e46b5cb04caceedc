package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/calltrail/calltrail/internal/database/models"
)

// legalHoldRepo implements LegalHoldRepository.
type legalHoldRepo struct {
	db *DB
}

// NewLegalHoldRepository creates a new LegalHoldRepository.
func NewLegalHoldRepository(db *DB) LegalHoldRepository {
	return &legalHoldRepo{db: db}
}

const legalHoldCols = `id, org_id, resource_type, resource_id, reason,
	 created_at, released_at`

// Create places a hold on a resource.
func (r *legalHoldRepo) Create(ctx context.Context, hold *models.LegalHold) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO legal_holds (org_id, resource_type, resource_id, reason)
		 VALUES (?, ?, ?, ?)`,
		hold.OrgID, hold.ResourceType, hold.ResourceID, hold.Reason,
	)
	if err != nil {
		return fmt.Errorf("inserting legal hold: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	hold.ID = id
	return nil
}

// Release marks a hold as released. Releasing an already-released hold is
// a no-op.
func (r *legalHoldRepo) Release(ctx context.Context, orgID string, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE legal_holds SET released_at = datetime('now')
		 WHERE org_id = ? AND id = ? AND released_at IS NULL`, orgID, id)
	if err != nil {
		return fmt.Errorf("releasing legal hold: %w", err)
	}
	return nil
}

// Active returns the active hold on the resource, or nil when none exists.
func (r *legalHoldRepo) Active(ctx context.Context, orgID, resourceType, resourceID string) (*models.LegalHold, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+legalHoldCols+` FROM legal_holds
		 WHERE org_id = ? AND resource_type = ? AND resource_id = ?
		 AND released_at IS NULL ORDER BY id LIMIT 1`,
		orgID, resourceType, resourceID)

	var h models.LegalHold
	err := row.Scan(&h.ID, &h.OrgID, &h.ResourceType, &h.ResourceID, &h.Reason,
		&h.CreatedAt, &h.ReleasedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning legal hold: %w", err)
	}
	return &h, nil
}

// List returns all holds for an org, active and released.
func (r *legalHoldRepo) List(ctx context.Context, orgID string) ([]models.LegalHold, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+legalHoldCols+` FROM legal_holds
		 WHERE org_id = ? ORDER BY id DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing legal holds: %w", err)
	}
	defer rows.Close()

	var holds []models.LegalHold
	for rows.Next() {
		var h models.LegalHold
		if err := rows.Scan(&h.ID, &h.OrgID, &h.ResourceType, &h.ResourceID,
			&h.Reason, &h.CreatedAt, &h.ReleasedAt); err != nil {
			return nil, fmt.Errorf("scanning legal hold row: %w", err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating legal hold rows: %w", err)
	}

	return holds, nil
}
