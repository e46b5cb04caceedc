package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGSink writes audit entries to a dedicated PostgreSQL archive, for
// deployments where the audit trail outlives the service instance.
type PGSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPGSink opens a PostgreSQL connection and ensures the audit table
// exists.
func NewPGSink(dsn string, logger *slog.Logger) (*PGSink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgresql: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgresql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		id            TEXT PRIMARY KEY,
		org_id        TEXT NOT NULL DEFAULT '',
		actor         TEXT NOT NULL,
		action        TEXT NOT NULL,
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id   TEXT NOT NULL DEFAULT '',
		event_type    TEXT NOT NULL DEFAULT '',
		decision      TEXT NOT NULL DEFAULT '',
		before        TEXT NOT NULL DEFAULT '',
		after         TEXT NOT NULL DEFAULT '',
		payload       TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit_log table: %w", err)
	}

	slog.Info("postgresql audit sink opened")
	return &PGSink{db: db, logger: logger.With("component", "audit")}, nil
}

// Close closes the underlying database connection.
func (s *PGSink) Close() error {
	return s.db.Close()
}

// Record implements Sink.
func (s *PGSink) Record(ctx context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, org_id, actor, action, resource_type,
		 resource_id, event_type, decision, before, after, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		newID(), e.OrgID, e.Actor, e.Action, e.ResourceType, e.ResourceID,
		e.EventType, e.Decision, e.Before, e.After, e.Payload, e.CreatedAt,
	)
	if err != nil {
		logFailure(s.logger, e, err)
	}
}
