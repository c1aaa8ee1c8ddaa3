package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
)

// CleanupExpiredEvents removes every event whose retention deadline has
// passed with auto-delete set, from both the ring and durable storage.
// Idempotent: a second run right after the first removes nothing more.
// Safe to run concurrently with LogEvent; new events carry retention
// deadlines in the future and are never touched.
func (t *Trail) CleanupExpiredEvents(ctx context.Context) (int64, error) {
	ctx, span := t.tracer.Start(ctx, "audit.cleanup_expired")
	defer span.End()

	now := t.nowFunc().UTC()

	ringRemoved := t.ring.RemoveIf(func(e *audit.Event) bool {
		return e.Retention.Expired(now)
	})

	storeRemoved, err := t.events.DeleteExpired(ctx, now)
	if err != nil {
		// A failed durable delete is retried on the next sweep; the
		// in-memory trim already happened.
		t.logger.Error("retention sweep failed against durable store",
			zap.Int("ring_removed", ringRemoved),
			zap.Error(err))
		return int64(ringRemoved), nil
	}

	removed := storeRemoved
	if int64(ringRemoved) > removed {
		removed = int64(ringRemoved)
	}
	if removed > 0 {
		t.logger.Info("retention sweep completed",
			zap.Int64("removed", removed),
			zap.Int("ring_removed", ringRemoved),
			zap.Int64("store_removed", storeRemoved))
		t.recordSweep(ctx, removed, ringRemoved, storeRemoved)
	}
	return removed, nil
}

// recordSweep audits a sweep that deleted something. A sweep that
// found nothing leaves no event behind.
func (t *Trail) recordSweep(ctx context.Context, removed int64, ringRemoved int, storeRemoved int64) {
	event, err := audit.NewEvent(audit.EventRetentionSweep, audit.CategorySystem,
		audit.SeverityLow, audit.OutcomeSuccess, "default")
	if err != nil {
		return
	}
	event.WithDetail("removed", removed).
		WithDetail("ring_removed", ringRemoved).
		WithDetail("store_removed", storeRemoved)
	if _, err := t.LogEvent(ctx, event); err != nil {
		t.logger.Warn("failed to audit retention sweep", zap.Error(err))
	}
}
