package store

import (
	"context"
	"database/sql"

	"tezrelay/pkg/models"
)

// UpsertContact registers a contact or refreshes an existing registration
// in place. Re-registering the same user updates the profile rather than
// creating a duplicate row.
func UpsertContact(ctx context.Context, c models.Contact) error {
	d, err := handle()
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx,
		`INSERT INTO contacts (id, display_name, email, avatar_url, tez_address, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			avatar_url = excluded.avatar_url,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		c.ID, c.DisplayName, nullable(c.Email), nullable(c.AvatarURL), c.TezAddress, c.Status,
		fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt),
	)
	return err
}

// GetContact returns the contact by user id or ErrNotFound.
func GetContact(ctx context.Context, id string) (models.Contact, error) {
	d, err := handle()
	if err != nil {
		return models.Contact{}, err
	}
	return scanContact(d.QueryRowContext(ctx,
		`SELECT id, display_name, email, avatar_url, tez_address, status, created_at, updated_at
		 FROM contacts WHERE id = ?`, id))
}

// SearchContacts matches display names and tez addresses case-insensitively.
func SearchContacts(ctx context.Context, q string, limit int) ([]models.Contact, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	pattern := "%" + q + "%"
	rows, err := d.QueryContext(ctx,
		`SELECT id, display_name, email, avatar_url, tez_address, status, created_at, updated_at
		 FROM contacts
		 WHERE display_name LIKE ? COLLATE NOCASE OR tez_address LIKE ? COLLATE NOCASE
		 ORDER BY display_name LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (models.Contact, error) {
	var c models.Contact
	var email, avatar sql.NullString
	var created, updated string
	err := row.Scan(&c.ID, &c.DisplayName, &email, &avatar, &c.TezAddress, &c.Status, &created, &updated)
	if err == sql.ErrNoRows {
		return models.Contact{}, ErrNotFound
	}
	if err != nil {
		return models.Contact{}, err
	}
	c.Email = email.String
	c.AvatarURL = avatar.String
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
