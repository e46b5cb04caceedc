package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/calltrail/calltrail/internal/database/models"
	"github.com/calltrail/calltrail/internal/errs"
)

// orgRepo implements OrgRepository.
type orgRepo struct {
	db *DB
}

// NewOrgRepository creates a new OrgRepository.
func NewOrgRepository(db *DB) OrgRepository {
	return &orgRepo{db: db}
}

const orgCols = `id, org_id, name, provider_account_id, telephony_enabled, created_at`

// Create inserts a new org. The org id and provider account id must
// both be unused.
func (r *orgRepo) Create(ctx context.Context, org *models.Org) error {
	var taken int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orgs WHERE org_id = ? OR provider_account_id = ?`,
		org.OrgID, org.ProviderAccountID).Scan(&taken)
	if err != nil {
		return fmt.Errorf("checking org uniqueness: %w", err)
	}
	if taken > 0 {
		return errs.Conflictf("org id or provider account already registered")
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO orgs (org_id, name, provider_account_id, telephony_enabled)
		 VALUES (?, ?, ?, ?)`,
		org.OrgID, org.Name, org.ProviderAccountID, org.TelephonyEnabled,
	)
	if err != nil {
		return fmt.Errorf("inserting org: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	org.ID = id
	return nil
}

// GetByProviderAccountID resolves the org a webhook delivery belongs to.
func (r *orgRepo) GetByProviderAccountID(ctx context.Context, accountID string) (*models.Org, error) {
	return scanOrg(r.db.QueryRowContext(ctx,
		`SELECT `+orgCols+` FROM orgs WHERE provider_account_id = ?`, accountID))
}

// GetByOrgID returns an org by its tenant identifier.
func (r *orgRepo) GetByOrgID(ctx context.Context, orgID string) (*models.Org, error) {
	return scanOrg(r.db.QueryRowContext(ctx,
		`SELECT `+orgCols+` FROM orgs WHERE org_id = ?`, orgID))
}

// List returns all orgs.
func (r *orgRepo) List(ctx context.Context) ([]models.Org, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orgCols+` FROM orgs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing orgs: %w", err)
	}
	defer rows.Close()

	var orgs []models.Org
	for rows.Next() {
		var o models.Org
		if err := rows.Scan(&o.ID, &o.OrgID, &o.Name, &o.ProviderAccountID,
			&o.TelephonyEnabled, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning org row: %w", err)
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating org rows: %w", err)
	}

	return orgs, nil
}

func scanOrg(row *sql.Row) (*models.Org, error) {
	var o models.Org
	err := row.Scan(&o.ID, &o.OrgID, &o.Name, &o.ProviderAccountID,
		&o.TelephonyEnabled, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning org: %w", err)
	}
	return &o, nil
}
