package store

import (
	"context"
	"database/sql"
	"time"

	"tezrelay/pkg/models"
)

// SaveTez persists a Tez together with its context layers, recipient rows
// and any outbound deliveries in a single transaction. No reader observes
// a partially formed Tez.
func SaveTez(ctx context.Context, t models.Tez, layers []models.TezContext, recipients []models.TezRecipient, deliveries []models.OutboundDelivery) error {
	return inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tez (id, team_id, conversation_id, thread_id, parent_tez_id, surface_text,
			                  type, urgency, action_requested, sender_user_id, visibility, status,
			                  created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, nullable(t.TeamID), nullable(t.ConversationID), t.ThreadID, nullable(t.ParentTezID),
			t.SurfaceText, string(t.Type), string(t.Urgency), nullable(t.ActionRequested),
			t.SenderUserID, string(t.Visibility), string(t.Status),
			fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt),
		); err != nil {
			return err
		}
		for i, l := range layers {
			var conf any
			if l.Confidence != nil {
				conf = *l.Confidence
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tez_context (id, tez_id, seq, layer, content, mime_type, confidence, source, derived_from, created_by, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				l.ID, t.ID, i, string(l.Layer), l.Content, nullable(l.MimeType), conf,
				nullable(string(l.Source)), nullable(l.DerivedFrom), l.CreatedBy, fmtTime(l.CreatedAt),
			); err != nil {
				return err
			}
		}
		for _, r := range recipients {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tez_recipients (tez_id, user_id, delivered_at, read_at, acknowledged_at)
				 VALUES (?, ?, ?, NULL, NULL)
				 ON CONFLICT (tez_id, user_id) DO NOTHING`,
				t.ID, r.UserID, fmtTime(r.DeliveredAt),
			); err != nil {
				return err
			}
		}
		for _, dv := range deliveries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO outbound_deliveries (id, target_host, bundle, status, attempts, next_attempt_at, created_at, updated_at)
				 VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
				dv.ID, dv.TargetHost, dv.Bundle, string(dv.Status),
				fmtTime(dv.NextAttemptAt), fmtTime(dv.CreatedAt), fmtTime(dv.UpdatedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetTez returns the Tez by id or ErrNotFound.
func GetTez(ctx context.Context, id string) (models.Tez, error) {
	d, err := handle()
	if err != nil {
		return models.Tez{}, err
	}
	return scanTez(d.QueryRowContext(ctx, selectTez+` WHERE id = ?`, id))
}

const selectTez = `SELECT id, team_id, conversation_id, thread_id, parent_tez_id, surface_text,
       type, urgency, action_requested, sender_user_id, visibility, status, created_at, updated_at
  FROM tez`

func scanTez(row rowScanner) (models.Tez, error) {
	var t models.Tez
	var teamID, convID, parentID, action sql.NullString
	var typ, urg, vis, status, created, updated string
	err := row.Scan(&t.ID, &teamID, &convID, &t.ThreadID, &parentID, &t.SurfaceText,
		&typ, &urg, &action, &t.SenderUserID, &vis, &status, &created, &updated)
	if err == sql.ErrNoRows {
		return models.Tez{}, ErrNotFound
	}
	if err != nil {
		return models.Tez{}, err
	}
	t.TeamID = teamID.String
	t.ConversationID = convID.String
	t.ParentTezID = parentID.String
	t.ActionRequested = action.String
	t.Type = models.TezType(typ)
	t.Urgency = models.Urgency(urg)
	t.Visibility = models.Visibility(vis)
	t.Status = models.TezStatus(status)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

func collectTez(rows *sql.Rows) ([]models.Tez, error) {
	defer func() { _ = rows.Close() }()
	var out []models.Tez
	for rows.Next() {
		t, err := scanTez(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListThread returns every Tez sharing threadID, oldest first, ties broken
// by id so admissions racing within one timestamp have a stable order.
func ListThread(ctx context.Context, threadID string) ([]models.Tez, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx, selectTez+` WHERE thread_id = ? ORDER BY created_at ASC, id ASC`, threadID)
	if err != nil {
		return nil, err
	}
	return collectTez(rows)
}

// StreamTeam returns up to limit active team Tez newer-first, restricted to
// rows strictly older than before when non-zero. hasMore reports whether a
// further row exists past the returned slice.
func StreamTeam(ctx context.Context, teamID string, limit int, before time.Time) ([]models.Tez, bool, error) {
	d, err := handle()
	if err != nil {
		return nil, false, err
	}
	var rows *sql.Rows
	if !before.IsZero() {
		rows, err = d.QueryContext(ctx,
			selectTez+` WHERE team_id = ? AND status = ? AND created_at < ? ORDER BY created_at DESC, id DESC LIMIT ?`,
			teamID, string(models.StatusActive), fmtTime(before), limit+1)
	} else {
		rows, err = d.QueryContext(ctx,
			selectTez+` WHERE team_id = ? AND status = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
			teamID, string(models.StatusActive), limit+1)
	}
	if err != nil {
		return nil, false, err
	}
	out, err := collectTez(rows)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

// ListConversationMessages pages a conversation newest-first with the same
// cursor contract as StreamTeam.
func ListConversationMessages(ctx context.Context, convID string, limit int, before time.Time) ([]models.Tez, bool, error) {
	d, err := handle()
	if err != nil {
		return nil, false, err
	}
	var rows *sql.Rows
	if !before.IsZero() {
		rows, err = d.QueryContext(ctx,
			selectTez+` WHERE conversation_id = ? AND created_at < ? ORDER BY created_at DESC, id DESC LIMIT ?`,
			convID, fmtTime(before), limit+1)
	} else {
		rows, err = d.QueryContext(ctx,
			selectTez+` WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
			convID, limit+1)
	}
	if err != nil {
		return nil, false, err
	}
	out, err := collectTez(rows)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

// ListTezContext returns a Tez's context layers in insertion order.
func ListTezContext(ctx context.Context, tezID string) ([]models.TezContext, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx,
		`SELECT id, tez_id, layer, content, mime_type, confidence, source, derived_from, created_by, created_at
		 FROM tez_context WHERE tez_id = ? ORDER BY seq`, tezID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.TezContext
	for rows.Next() {
		var l models.TezContext
		var layer, created string
		var mime, source, derived sql.NullString
		var conf sql.NullInt64
		if err := rows.Scan(&l.ID, &l.TezID, &layer, &l.Content, &mime, &conf, &source, &derived, &l.CreatedBy, &created); err != nil {
			return nil, err
		}
		l.Layer = models.ContextLayer(layer)
		l.MimeType = mime.String
		if conf.Valid {
			c := int(conf.Int64)
			l.Confidence = &c
		}
		l.Source = models.ContextSource(source.String)
		l.DerivedFrom = derived.String
		l.CreatedAt = parseTime(created)
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListTezRecipients returns the recipient roster of a Tez.
func ListTezRecipients(ctx context.Context, tezID string) ([]models.TezRecipient, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx,
		`SELECT tez_id, user_id, delivered_at, read_at, acknowledged_at
		 FROM tez_recipients WHERE tez_id = ? ORDER BY user_id`, tezID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.TezRecipient
	for rows.Next() {
		var r models.TezRecipient
		var delivered string
		var readAt, ackAt sql.NullString
		if err := rows.Scan(&r.TezID, &r.UserID, &delivered, &readAt, &ackAt); err != nil {
			return nil, err
		}
		r.DeliveredAt = parseTime(delivered)
		r.ReadAt = parseTimePtr(readAt)
		r.AcknowledgedAt = parseTimePtr(ackAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// IsTezRecipient reports whether userID is on the tez's roster.
func IsTezRecipient(ctx context.Context, tezID, userID string) (bool, error) {
	d, err := handle()
	if err != nil {
		return false, err
	}
	var one int
	err = d.QueryRowContext(ctx,
		`SELECT 1 FROM tez_recipients WHERE tez_id = ? AND user_id = ?`, tezID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkTezRead stamps read_at for a recipient if not already set.
func MarkTezRead(ctx context.Context, tezID, userID, ts string) error {
	d, err := handle()
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx,
		`UPDATE tez_recipients SET read_at = ? WHERE tez_id = ? AND user_id = ? AND read_at IS NULL`,
		ts, tezID, userID)
	return err
}

// AckTez stamps acknowledged_at for a recipient. Returns ErrNotFound when
// the actor is not on the roster.
func AckTez(ctx context.Context, tezID, userID, ts string) error {
	d, err := handle()
	if err != nil {
		return err
	}
	res, err := d.ExecContext(ctx,
		`UPDATE tez_recipients SET acknowledged_at = ? WHERE tez_id = ? AND user_id = ?`,
		ts, tezID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadByTeam counts active team tez the user has not read, per team.
func UnreadByTeam(ctx context.Context, userID string) (map[string]int, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx,
		`SELECT t.team_id, COUNT(*)
		 FROM tez t
		 JOIN tez_recipients r ON r.tez_id = t.id
		 WHERE r.user_id = ? AND r.read_at IS NULL AND t.team_id IS NOT NULL AND t.status = ?
		 GROUP BY t.team_id`, userID, string(models.StatusActive))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
