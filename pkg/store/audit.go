package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"tezrelay/pkg/models"
)

// AppendAudit writes one journal row. The journal is append-only: there is
// deliberately no update or delete accessor for audit_entries.
func AppendAudit(ctx context.Context, e models.AuditEntry) error {
	d, err := handle()
	if err != nil {
		return err
	}
	var meta any
	if len(e.Metadata) > 0 {
		b, merr := json.Marshal(e.Metadata)
		if merr != nil {
			return merr
		}
		meta = string(b)
	}
	_, err = d.ExecContext(ctx,
		`INSERT INTO audit_entries (id, team_id, actor_user_id, action, target_type, target_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nullable(e.TeamID), e.ActorUserID, string(e.Action), e.TargetType, e.TargetID, meta, fmtTime(e.CreatedAt))
	return err
}

// ListAudit returns journal rows newest-first, optionally filtered by
// action and team.
func ListAudit(ctx context.Context, action, teamID string, limit int) ([]models.AuditEntry, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	q := `SELECT id, team_id, actor_user_id, action, target_type, target_id, metadata, created_at FROM audit_entries`
	var args []any
	switch {
	case action != "" && teamID != "":
		q += ` WHERE action = ? AND team_id = ?`
		args = append(args, action, teamID)
	case action != "":
		q += ` WHERE action = ?`
		args = append(args, action)
	case teamID != "":
		q += ` WHERE team_id = ?`
		args = append(args, teamID)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var teamID, meta sql.NullString
		var action, created string
		if err := rows.Scan(&e.ID, &teamID, &e.ActorUserID, &action, &e.TargetType, &e.TargetID, &meta, &created); err != nil {
			return nil, err
		}
		e.TeamID = teamID.String
		e.Action = models.AuditAction(action)
		e.CreatedAt = parseTime(created)
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
