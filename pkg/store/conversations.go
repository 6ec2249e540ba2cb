package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"tezrelay/pkg/models"
)

// DMKey builds the unique index key for a DM over its unordered member
// pair. Both creation orders produce the same key.
func DMKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

// FindDM returns the id of an existing DM over the pair, or ErrNotFound.
func FindDM(ctx context.Context, a, b string) (string, error) {
	d, err := handle()
	if err != nil {
		return "", err
	}
	var id string
	err = d.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE dm_key = ?`, DMKey(a, b)).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

// CreateConversation inserts the conversation and all memberships in one
// transaction. For DMs the dm_key unique index enforces pair uniqueness;
// callers should FindDM first and treat a constraint violation as a
// concurrent create.
func CreateConversation(ctx context.Context, conv models.Conversation, members []models.ConversationMember) error {
	return inTx(ctx, func(tx *sql.Tx) error {
		var dmKey any
		if conv.Type == models.ConversationDM && len(members) == 2 {
			dmKey = DMKey(members[0].UserID, members[1].UserID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, type, name, created_by, dm_key, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			conv.ID, string(conv.Type), nullable(conv.Name), conv.CreatedBy, dmKey,
			fmtTime(conv.CreatedAt), fmtTime(conv.UpdatedAt),
		); err != nil {
			return err
		}
		for _, m := range members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO conversation_members (conversation_id, user_id, joined_at, last_read_at)
				 VALUES (?, ?, ?, NULL)`,
				conv.ID, m.UserID, fmtTime(m.JoinedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConversation returns the conversation by id or ErrNotFound.
func GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	d, err := handle()
	if err != nil {
		return models.Conversation{}, err
	}
	var c models.Conversation
	var typ string
	var name sql.NullString
	var created, updated string
	err = d.QueryRowContext(ctx,
		`SELECT id, type, name, created_by, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &typ, &name, &c.CreatedBy, &created, &updated)
	if err == sql.ErrNoRows {
		return models.Conversation{}, ErrNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	c.Type = models.ConversationType(typ)
	c.Name = name.String
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

// IsConversationMember reports whether userID belongs to the conversation.
func IsConversationMember(ctx context.Context, convID, userID string) (bool, error) {
	d, err := handle()
	if err != nil {
		return false, err
	}
	var one int
	err = d.QueryRowContext(ctx,
		`SELECT 1 FROM conversation_members WHERE conversation_id = ? AND user_id = ?`,
		convID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListConversationMembers returns the membership rows of a conversation.
func ListConversationMembers(ctx context.Context, convID string) ([]models.ConversationMember, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx,
		`SELECT conversation_id, user_id, joined_at, last_read_at
		 FROM conversation_members WHERE conversation_id = ? ORDER BY user_id`, convID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.ConversationMember
	for rows.Next() {
		var m models.ConversationMember
		var joined string
		var lastRead sql.NullString
		if err := rows.Scan(&m.ConversationID, &m.UserID, &joined, &lastRead); err != nil {
			return nil, err
		}
		m.JoinedAt = parseTime(joined)
		m.LastReadAt = parseTimePtr(lastRead)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListConversationsForUser returns the user's conversations annotated with
// the last message and the member's unread count (messages newer than
// last_read_at and not authored by the member).
func ListConversationsForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx,
		`SELECT c.id, c.type, c.name, c.created_by, c.created_at, c.updated_at, cm.last_read_at
		 FROM conversations c
		 JOIN conversation_members cm ON cm.conversation_id = c.id
		 WHERE cm.user_id = ?
		 ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	// The pool holds a single connection, so the cursor must be drained
	// and closed before any annotation query runs.
	var out []models.ConversationSummary
	var cursors []sql.NullString
	for rows.Next() {
		var s models.ConversationSummary
		var typ string
		var name, lastRead sql.NullString
		var created, updated string
		if err := rows.Scan(&s.ID, &typ, &name, &s.CreatedBy, &created, &updated, &lastRead); err != nil {
			_ = rows.Close()
			return nil, err
		}
		s.Type = models.ConversationType(typ)
		s.Name = name.String
		s.CreatedAt = parseTime(created)
		s.UpdatedAt = parseTime(updated)
		out = append(out, s)
		cursors = append(cursors, lastRead)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for i := range out {
		s := &out[i]

		// Last message annotation.
		var lm models.LastMessage
		var lmCreated string
		err = d.QueryRowContext(ctx,
			`SELECT id, surface_text, sender_user_id, created_at FROM tez
			 WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, s.ID,
		).Scan(&lm.ID, &lm.SurfaceText, &lm.SenderUserID, &lmCreated)
		if err == nil {
			lm.CreatedAt = parseTime(lmCreated)
			s.LastMessage = &lm
		} else if err != sql.ErrNoRows {
			return nil, err
		}

		// Unread count: everything after last_read_at not authored by the
		// member; a null cursor counts all foreign messages.
		lastRead := cursors[i]
		if lastRead.Valid {
			err = d.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM tez WHERE conversation_id = ? AND sender_user_id != ? AND created_at > ?`,
				s.ID, userID, lastRead.String).Scan(&s.UnreadCount)
		} else {
			err = d.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM tez WHERE conversation_id = ? AND sender_user_id != ?`,
				s.ID, userID).Scan(&s.UnreadCount)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MarkConversationRead sets the member's read cursor to now (RFC3339 ts).
func MarkConversationRead(ctx context.Context, convID, userID, ts string) error {
	d, err := handle()
	if err != nil {
		return err
	}
	res, err := d.ExecContext(ctx,
		`UPDATE conversation_members SET last_read_at = ? WHERE conversation_id = ? AND user_id = ?`,
		ts, convID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchConversation bumps updated_at so listings sort by recent activity.
func TouchConversation(ctx context.Context, convID, ts string) error {
	d, err := handle()
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, ts, convID)
	return err
}

// UnreadByConversation returns per-conversation unread counts for a user.
func UnreadByConversation(ctx context.Context, userID string) (map[string]int, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx,
		`SELECT cm.conversation_id,
		        (SELECT COUNT(*) FROM tez t
		         WHERE t.conversation_id = cm.conversation_id
		           AND t.sender_user_id != cm.user_id
		           AND (cm.last_read_at IS NULL OR t.created_at > cm.last_read_at))
		 FROM conversation_members cm WHERE cm.user_id = ?`, userID)
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
		if n > 0 {
			out[id] = n
		}
	}
	return out, rows.Err()
}
