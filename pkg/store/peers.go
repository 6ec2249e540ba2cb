package store

import (
	"context"
	"database/sql"

	"tezrelay/pkg/models"
)

// UpsertPeer registers or refreshes a peer. The trust level of an existing
// row is preserved; identity fields follow the newest self-description.
func UpsertPeer(ctx context.Context, p models.Peer) error {
	d, err := handle()
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx,
		`INSERT INTO peers (host, server_id, public_key, display_name, trust_level, first_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (host) DO UPDATE SET
			server_id = excluded.server_id,
			public_key = excluded.public_key,
			display_name = excluded.display_name`,
		p.Host, p.ServerID, p.PublicKey, nullable(p.DisplayName), string(p.TrustLevel), fmtTime(p.FirstSeenAt),
	)
	return err
}

func scanPeer(row rowScanner) (models.Peer, error) {
	var p models.Peer
	var display sql.NullString
	var trust, firstSeen string
	err := row.Scan(&p.Host, &p.ServerID, &p.PublicKey, &display, &trust, &firstSeen)
	if err == sql.ErrNoRows {
		return models.Peer{}, ErrNotFound
	}
	if err != nil {
		return models.Peer{}, err
	}
	p.DisplayName = display.String
	p.TrustLevel = models.TrustLevel(trust)
	p.FirstSeenAt = parseTime(firstSeen)
	return p, nil
}

const selectPeer = `SELECT host, server_id, public_key, display_name, trust_level, first_seen_at FROM peers`

// GetPeer returns the peer by host or ErrNotFound.
func GetPeer(ctx context.Context, host string) (models.Peer, error) {
	d, err := handle()
	if err != nil {
		return models.Peer{}, err
	}
	return scanPeer(d.QueryRowContext(ctx, selectPeer+` WHERE host = ?`, host))
}

// GetPeerByServerID resolves the signature keyId to a peer.
func GetPeerByServerID(ctx context.Context, serverID string) (models.Peer, error) {
	d, err := handle()
	if err != nil {
		return models.Peer{}, err
	}
	return scanPeer(d.QueryRowContext(ctx, selectPeer+` WHERE server_id = ?`, serverID))
}

// ListPeers returns all registered peers ordered by host.
func ListPeers(ctx context.Context) ([]models.Peer, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx, selectPeer+` ORDER BY host`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.Peer
	for rows.Next() {
		p, err := scanPeer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPeerTrust updates a peer's trust level. Returns ErrNotFound for an
// unknown host.
func SetPeerTrust(ctx context.Context, host string, level models.TrustLevel) error {
	d, err := handle()
	if err != nil {
		return err
	}
	res, err := d.ExecContext(ctx,
		`UPDATE peers SET trust_level = ? WHERE host = ?`, string(level), host)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePeer removes a peer registration.
func DeletePeer(ctx context.Context, host string) error {
	d, err := handle()
	if err != nil {
		return err
	}
	res, err := d.ExecContext(ctx, `DELETE FROM peers WHERE host = ?`, host)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
