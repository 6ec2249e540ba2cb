// Package audit records the append-only activity journal. Entries are
// written after the owning transaction commits and never block the
// operation that produced them; a failed journal write is logged and
// dropped rather than failing a delivery that already happened.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tezrelay/pkg/logger"
	"tezrelay/pkg/models"
	"tezrelay/pkg/store"
)

// Record appends one journal entry and mirrors it to the audit log sink
// when one is attached. Failures are logged and dropped.
func Record(ctx context.Context, action models.AuditAction, actor, targetType, targetID, teamID string, meta map[string]any) {
	e := models.AuditEntry{
		ID:          uuid.NewString(),
		TeamID:      teamID,
		ActorUserID: actor,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    meta,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.AppendAudit(ctx, e); err != nil {
		logger.Error("audit_append_failed", "action", string(action), "target", targetID, "error", err.Error())
		return
	}
	if logger.Audit != nil {
		logger.Audit.Info(string(action),
			"actor", actor,
			"target_type", targetType,
			"target_id", targetID,
			"team_id", teamID,
		)
	}
}

// List returns journal rows newest-first, optionally filtered.
func List(ctx context.Context, action, teamID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return store.ListAudit(ctx, action, teamID, limit)
}
