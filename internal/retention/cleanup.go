package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/database"
)

// StartCleanupTicker runs a background goroutine that periodically removes
// recording registrations whose retain_until has passed. Recordings under
// an active legal hold are skipped until the hold is released; the call
// aggregate itself is never deleted. The goroutine stops when the provided
// context is cancelled.
func StartCleanupTicker(ctx context.Context, recordings database.RecordingRepository, holds database.LegalHoldRepository, sink audit.Sink, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupExpired(ctx, recordings, holds, sink); err != nil {
					slog.Error("recording retention cleanup failed", "error", err)
				}
			}
		}
	}()
}

func cleanupExpired(ctx context.Context, recordings database.RecordingRepository, holds database.LegalHoldRepository, sink audit.Sink) error {
	expired, err := recordings.ListExpired(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("listing expired recordings: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	deleted := 0
	for _, rec := range expired {
		hold, err := holds.Active(ctx, rec.OrgID, "recording", fmt.Sprint(rec.ID))
		if err != nil {
			return fmt.Errorf("checking hold for recording %d: %w", rec.ID, err)
		}
		if hold != nil {
			slog.Info("retention skipping held recording",
				"recording_id", rec.ID, "hold_id", hold.ID)
			continue
		}

		if err := recordings.Delete(ctx, rec.ID); err != nil {
			return fmt.Errorf("deleting expired recording %d: %w", rec.ID, err)
		}
		deleted++

		sink.Record(ctx, audit.Entry{
			OrgID:        rec.OrgID,
			Actor:        audit.SystemActor,
			Action:       "recording_retention_expired",
			ResourceType: "recording",
			ResourceID:   fmt.Sprint(rec.ID),
		})
	}

	if deleted > 0 {
		slog.Info("recording retention cleanup", "deleted", deleted, "expired", len(expired))
	}
	return nil
}
