package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"tezrelay/pkg/acl"
	"tezrelay/pkg/apierr"
	"tezrelay/pkg/audit"
	"tezrelay/pkg/models"
	"tezrelay/pkg/store"
)

// RegisterTeams registers team and roster endpoints.
func RegisterTeams(r *mux.Router) {
	r.HandleFunc("/teams", createTeam).Methods(http.MethodPost)
	r.HandleFunc("/teams/{id}/members", listTeamMembers).Methods(http.MethodGet)
	r.HandleFunc("/teams/{id}/members", addTeamMember).Methods(http.MethodPost)
	r.HandleFunc("/teams/{id}/members/{userId}", removeTeamMember).Methods(http.MethodDelete)
}

func createTeam(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	if in.Name == "" {
		writeErr(w, apierr.Validation("name is required"))
		return
	}
	now := time.Now().UTC()
	team := models.Team{
		ID:        uuid.NewString(),
		Name:      in.Name,
		CreatedBy: actor(r),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateTeam(r.Context(), team); err != nil {
		writeErr(w, err)
		return
	}
	audit.Record(r.Context(), models.AuditTeamCreated, actor(r), "team", team.ID, team.ID, nil)
	writeData(w, http.StatusCreated, team, nil)
}

func listTeamMembers(w http.ResponseWriter, r *http.Request) {
	teamID := mux.Vars(r)["id"]
	if err := acl.RequireTeamMember(r.Context(), teamID, actor(r)); err != nil {
		writeErr(w, err)
		return
	}
	members, err := store.ListTeamMembers(r.Context(), teamID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if members == nil {
		members = []models.TeamMember{}
	}
	writeData(w, http.StatusOK, members, nil)
}

func addTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID := mux.Vars(r)["id"]
	if err := acl.RequireTeamAdmin(r.Context(), teamID, actor(r)); err != nil {
		writeErr(w, err)
		return
	}
	var in struct {
		UserID string `json:"userId"`
		Role   string `json:"role,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	if in.UserID == "" {
		writeErr(w, apierr.Validation("userId is required"))
		return
	}
	role := in.Role
	if role == "" {
		role = string(models.RoleMember)
	}
	if !models.ValidTeamRole(role) {
		writeErr(w, apierr.Validation("invalid role"))
		return
	}
	m := models.TeamMember{
		TeamID:   teamID,
		UserID:   in.UserID,
		Role:     models.TeamRole(role),
		JoinedAt: time.Now().UTC(),
	}
	if err := store.AddTeamMember(r.Context(), m); err != nil {
		writeErr(w, err)
		return
	}
	audit.Record(r.Context(), models.AuditTeamMemberAdded, actor(r), "team_member", in.UserID, teamID, map[string]any{"role": role})
	writeData(w, http.StatusCreated, m, nil)
}

func removeTeamMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	teamID, userID := vars["id"], vars["userId"]

	// Admins may remove anyone; every member may remove themselves.
	if actor(r) != userID {
		if err := acl.RequireTeamAdmin(r.Context(), teamID, actor(r)); err != nil {
			writeErr(w, err)
			return
		}
	} else if err := acl.RequireTeamMember(r.Context(), teamID, actor(r)); err != nil {
		writeErr(w, err)
		return
	}

	if err := store.RemoveTeamMember(r.Context(), teamID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, apierr.NotFound("team member"))
			return
		}
		writeErr(w, apierr.Validation(err.Error()))
		return
	}
	audit.Record(r.Context(), models.AuditTeamMemberRemove, actor(r), "team_member", userID, teamID, nil)
	writeData(w, http.StatusOK, map[string]string{"removed": userID}, nil)
}
