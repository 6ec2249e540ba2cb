package acl

import (
	"context"
	"testing"
	"time"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/models"
	"tezrelay/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func saveTez(t *testing.T, tz models.Tez, recipients ...string) {
	t.Helper()
	now := time.Now().UTC()
	tz.ThreadID = tz.ID
	tz.Status = models.StatusActive
	tz.CreatedAt = now
	tz.UpdatedAt = now
	var rows []models.TezRecipient
	for _, uid := range recipients {
		rows = append(rows, models.TezRecipient{TezID: tz.ID, UserID: uid, DeliveredAt: now})
	}
	if err := store.SaveTez(context.Background(), tz, nil, rows, nil); err != nil {
		t.Fatalf("SaveTez: %v", err)
	}
}

func TestMayAccessSender(t *testing.T) {
	openStore(t)
	tz := models.Tez{ID: "t1", SurfaceText: "x", Type: models.TypeNote, Urgency: models.UrgencyNormal, SenderUserID: "alice", Visibility: models.VisibilityPrivate}
	saveTez(t, tz)
	if err := MayAccess(context.Background(), "alice", tz); err != nil {
		t.Fatalf("sender denied: %v", err)
	}
	if err := MayAccess(context.Background(), "bob", tz); apierr.From(err).Code != apierr.CodeForbidden {
		t.Fatalf("outsider err = %v, want FORBIDDEN", err)
	}
}

func TestMayAccessTeamMember(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := store.CreateTeam(ctx, models.Team{ID: "team-1", Name: "t", CreatedBy: "alice", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := store.AddTeamMember(ctx, models.TeamMember{TeamID: "team-1", UserID: "bob", Role: models.RoleMember, JoinedAt: now}); err != nil {
		t.Fatalf("AddTeamMember: %v", err)
	}
	tz := models.Tez{ID: "t2", TeamID: "team-1", SurfaceText: "x", Type: models.TypeNote, Urgency: models.UrgencyNormal, SenderUserID: "alice", Visibility: models.VisibilityTeam}
	saveTez(t, tz)

	if err := MayAccess(ctx, "bob", tz); err != nil {
		t.Fatalf("team member denied: %v", err)
	}
	if err := MayAccess(ctx, "mallory", tz); apierr.From(err).Code != apierr.CodeForbidden {
		t.Fatalf("outsider err = %v, want FORBIDDEN", err)
	}
}

func TestMayAccessRosterOnly(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	// A federated delivery carries neither team nor conversation; the
	// roster row is the only grant.
	tz := models.Tez{ID: "t3", SurfaceText: "x", Type: models.TypeNote, Urgency: models.UrgencyNormal, SenderUserID: "alice@relay-b.example", Visibility: models.VisibilityDM}
	saveTez(t, tz, "bob")

	if err := MayAccess(ctx, "bob", tz); err != nil {
		t.Fatalf("roster member denied: %v", err)
	}
	if err := MayAccess(ctx, "carol", tz); apierr.From(err).Code != apierr.CodeForbidden {
		t.Fatalf("non-recipient err = %v, want FORBIDDEN", err)
	}
}

func TestRequireTeamAdmin(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := store.CreateTeam(ctx, models.Team{ID: "team-1", Name: "t", CreatedBy: "alice", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := store.AddTeamMember(ctx, models.TeamMember{TeamID: "team-1", UserID: "bob", Role: models.RoleMember, JoinedAt: now}); err != nil {
		t.Fatalf("AddTeamMember: %v", err)
	}

	if err := RequireTeamAdmin(ctx, "team-1", "alice"); err != nil {
		t.Fatalf("creator is admin: %v", err)
	}
	if err := RequireTeamAdmin(ctx, "team-1", "bob"); apierr.From(err).Code != apierr.CodeForbidden {
		t.Fatalf("member err = %v, want FORBIDDEN", err)
	}
	if err := RequireTeamAdmin(ctx, "team-1", "mallory"); apierr.From(err).Code != apierr.CodeForbidden {
		t.Fatalf("outsider err = %v, want FORBIDDEN", err)
	}
}
