package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/calltrail/calltrail/internal/database"
)

// SQLiteSink writes audit entries to the primary database's audit_log
// table.
type SQLiteSink struct {
	db     *database.DB
	logger *slog.Logger
}

// NewSQLiteSink creates a sink backed by the primary database.
func NewSQLiteSink(db *database.DB, logger *slog.Logger) *SQLiteSink {
	return &SQLiteSink{db: db, logger: logger.With("component", "audit")}
}

// Record implements Sink.
func (s *SQLiteSink) Record(ctx context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, org_id, actor, action, resource_type,
		 resource_id, event_type, decision, before, after, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		newID(), e.OrgID, e.Actor, e.Action, e.ResourceType, e.ResourceID,
		e.EventType, e.Decision, e.Before, e.After, e.Payload, e.CreatedAt,
	)
	if err != nil {
		logFailure(s.logger, e, err)
	}
}
