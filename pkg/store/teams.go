package store

import (
	"context"
	"database/sql"
	"fmt"

	"tezrelay/pkg/models"
)

// CreateTeam inserts the team and its creator's admin membership in one
// transaction, so a team is never observable without an admin.
func CreateTeam(ctx context.Context, team models.Team) error {
	return inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO teams (id, name, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			team.ID, team.Name, team.CreatedBy, fmtTime(team.CreatedAt), fmtTime(team.UpdatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert team: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO team_members (team_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
			team.ID, team.CreatedBy, string(models.RoleAdmin), fmtTime(team.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert creator membership: %w", err)
		}
		return nil
	})
}

// GetTeam returns the team by id or ErrNotFound.
func GetTeam(ctx context.Context, id string) (models.Team, error) {
	d, err := handle()
	if err != nil {
		return models.Team{}, err
	}
	var t models.Team
	var created, updated string
	err = d.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at, updated_at FROM teams WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedBy, &created, &updated)
	if err == sql.ErrNoRows {
		return models.Team{}, ErrNotFound
	}
	if err != nil {
		return models.Team{}, err
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

// AddTeamMember inserts a membership row; replacing an existing row keeps
// the original joined_at.
func AddTeamMember(ctx context.Context, m models.TeamMember) error {
	d, err := handle()
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (team_id, user_id) DO UPDATE SET role = excluded.role`,
		m.TeamID, m.UserID, string(m.Role), fmtTime(m.JoinedAt),
	)
	return err
}

// RemoveTeamMember deletes a membership, refusing to remove the last
// admin. The check and delete share a transaction so concurrent removals
// cannot leave the team adminless.
func RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	return inTx(ctx, func(tx *sql.Tx) error {
		var role string
		err := tx.QueryRowContext(ctx,
			`SELECT role FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID,
		).Scan(&role)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if models.TeamRole(role) == models.RoleAdmin {
			var admins int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM team_members WHERE team_id = ? AND role = ?`,
				teamID, string(models.RoleAdmin),
			).Scan(&admins); err != nil {
				return err
			}
			if admins <= 1 {
				return fmt.Errorf("cannot remove the last admin of team %s", teamID)
			}
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
		return err
	})
}

// GetTeamMember returns the membership row or ErrNotFound.
func GetTeamMember(ctx context.Context, teamID, userID string) (models.TeamMember, error) {
	d, err := handle()
	if err != nil {
		return models.TeamMember{}, err
	}
	var m models.TeamMember
	var role, joined string
	err = d.QueryRowContext(ctx,
		`SELECT team_id, user_id, role, joined_at FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	).Scan(&m.TeamID, &m.UserID, &role, &joined)
	if err == sql.ErrNoRows {
		return models.TeamMember{}, ErrNotFound
	}
	if err != nil {
		return models.TeamMember{}, err
	}
	m.Role = models.TeamRole(role)
	m.JoinedAt = parseTime(joined)
	return m, nil
}

// IsTeamMember reports whether userID belongs to teamID.
func IsTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	d, err := handle()
	if err != nil {
		return false, err
	}
	var one int
	err = d.QueryRowContext(ctx,
		`SELECT 1 FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListTeamMembers returns the members of a team ordered by join time.
func ListTeamMembers(ctx context.Context, teamID string) ([]models.TeamMember, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx,
		`SELECT team_id, user_id, role, joined_at FROM team_members WHERE team_id = ? ORDER BY joined_at, user_id`,
		teamID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.TeamMember
	for rows.Next() {
		var m models.TeamMember
		var role, joined string
		if err := rows.Scan(&m.TeamID, &m.UserID, &role, &joined); err != nil {
			return nil, err
		}
		m.Role = models.TeamRole(role)
		m.JoinedAt = parseTime(joined)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListTeamsForUser returns team ids the user belongs to.
func ListTeamsForUser(ctx context.Context, userID string) ([]string, error) {
	d, err := handle()
	if err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx,
		`SELECT team_id FROM team_members WHERE user_id = ? ORDER BY team_id`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
