package models

import "time"

// TeamRole is the membership role inside a team.
type TeamRole string

const (
	RoleAdmin  TeamRole = "admin"
	RoleMember TeamRole = "member"
)

// Team is the broadest sharing scope. The creator becomes an admin in the
// same transaction that creates the team; a team never has zero admins.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TeamMember is a (team, user) membership row.
type TeamMember struct {
	TeamID   string    `json:"teamId"`
	UserID   string    `json:"userId"`
	Role     TeamRole  `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ValidTeamRole reports whether s is an enumerated team role.
func ValidTeamRole(s string) bool {
	return TeamRole(s) == RoleAdmin || TeamRole(s) == RoleMember
}
