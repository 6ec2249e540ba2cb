package store

import (
	"context"
	"testing"
	"time"

	"tezrelay/pkg/models"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func mkTez(id, teamID, sender string, created time.Time) models.Tez {
	return models.Tez{
		ID:           id,
		TeamID:       teamID,
		ThreadID:     id,
		SurfaceText:  "surface " + id,
		Type:         models.TypeNote,
		Urgency:      models.UrgencyNormal,
		SenderUserID: sender,
		Visibility:   models.VisibilityTeam,
		Status:       models.StatusActive,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestTeamLifecycle(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	team := models.Team{ID: "team-1", Name: "Platform", CreatedBy: "alice", CreatedAt: now, UpdatedAt: now}
	if err := CreateTeam(ctx, team); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	// The creator is an admin in the same transaction.
	m, err := GetTeamMember(ctx, "team-1", "alice")
	if err != nil {
		t.Fatalf("GetTeamMember: %v", err)
	}
	if m.Role != models.RoleAdmin {
		t.Fatalf("creator role = %q, want admin", m.Role)
	}

	if err := AddTeamMember(ctx, models.TeamMember{TeamID: "team-1", UserID: "bob", Role: models.RoleMember, JoinedAt: now}); err != nil {
		t.Fatalf("AddTeamMember: %v", err)
	}
	ok, err := IsTeamMember(ctx, "team-1", "bob")
	if err != nil || !ok {
		t.Fatalf("IsTeamMember(bob) = %v, %v", ok, err)
	}
	ok, err = IsTeamMember(ctx, "team-1", "mallory")
	if err != nil || ok {
		t.Fatalf("IsTeamMember(mallory) = %v, %v", ok, err)
	}

	members, err := ListTeamMembers(ctx, "team-1")
	if err != nil {
		t.Fatalf("ListTeamMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}

	// The last admin cannot leave.
	if err := RemoveTeamMember(ctx, "team-1", "alice"); err == nil {
		t.Fatal("expected error removing the only admin")
	}
	if err := RemoveTeamMember(ctx, "team-1", "bob"); err != nil {
		t.Fatalf("RemoveTeamMember(bob): %v", err)
	}
}

func TestSaveAndReadTez(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	conf := 80
	tz := mkTez("tz-1", "team-1", "alice", now)
	layers := []models.TezContext{
		{ID: "c-1", TezID: "tz-1", Layer: models.LayerBackground, Content: "we discussed this Monday", CreatedBy: "alice", CreatedAt: now},
		{ID: "c-2", TezID: "tz-1", Layer: models.LayerFact, Content: "deadline is Friday", Confidence: &conf, Source: models.SourceStated, CreatedBy: "alice", CreatedAt: now},
	}
	recipients := []models.TezRecipient{{TezID: "tz-1", UserID: "bob", DeliveredAt: now}}
	if err := SaveTez(ctx, tz, layers, recipients, nil); err != nil {
		t.Fatalf("SaveTez: %v", err)
	}

	got, err := GetTez(ctx, "tz-1")
	if err != nil {
		t.Fatalf("GetTez: %v", err)
	}
	if got.SurfaceText != tz.SurfaceText || got.TeamID != "team-1" || got.ThreadID != "tz-1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	gotLayers, err := ListTezContext(ctx, "tz-1")
	if err != nil {
		t.Fatalf("ListTezContext: %v", err)
	}
	if len(gotLayers) != 2 || gotLayers[0].Layer != models.LayerBackground {
		t.Fatalf("layers out of order: %+v", gotLayers)
	}
	if gotLayers[1].Confidence == nil || *gotLayers[1].Confidence != 80 {
		t.Fatalf("confidence lost: %+v", gotLayers[1])
	}

	if _, err := GetTez(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("GetTez(missing) = %v, want ErrNotFound", err)
	}
}

func TestThreadOrdering(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	root := mkTez("root", "", "alice", base)
	root.Visibility = models.VisibilityPrivate
	if err := SaveTez(ctx, root, nil, nil, nil); err != nil {
		t.Fatalf("SaveTez root: %v", err)
	}
	for i, id := range []string{"r1", "r2", "r3"} {
		reply := mkTez(id, "", "bob", base.Add(time.Duration(i+1)*time.Second))
		reply.ThreadID = "root"
		reply.ParentTezID = "root"
		reply.Visibility = models.VisibilityPrivate
		if err := SaveTez(ctx, reply, nil, nil, nil); err != nil {
			t.Fatalf("SaveTez %s: %v", id, err)
		}
	}

	msgs, err := ListThread(ctx, "root")
	if err != nil {
		t.Fatalf("ListThread: %v", err)
	}
	want := []string{"root", "r1", "r2", "r3"}
	if len(msgs) != len(want) {
		t.Fatalf("thread length = %d, want %d", len(msgs), len(want))
	}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Fatalf("thread[%d] = %q, want %q", i, msgs[i].ID, id)
		}
	}
}

func TestStreamTeamPagination(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"s1", "s2", "s3"} {
		if err := SaveTez(ctx, mkTez(id, "team-1", "alice", base.Add(time.Duration(i)*time.Second)), nil, nil, nil); err != nil {
			t.Fatalf("SaveTez %s: %v", id, err)
		}
	}

	page, hasMore, err := StreamTeam(ctx, "team-1", 2, time.Time{})
	if err != nil {
		t.Fatalf("StreamTeam: %v", err)
	}
	if !hasMore {
		t.Fatal("hasMore = false, want true")
	}
	if len(page) != 2 || page[0].ID != "s3" || page[1].ID != "s2" {
		t.Fatalf("page = %+v, want [s3 s2]", page)
	}

	rest, hasMore, err := StreamTeam(ctx, "team-1", 2, page[1].CreatedAt)
	if err != nil {
		t.Fatalf("StreamTeam page 2: %v", err)
	}
	if hasMore || len(rest) != 1 || rest[0].ID != "s1" {
		t.Fatalf("rest = %+v hasMore=%v, want [s1] false", rest, hasMore)
	}
}

func TestRecipientCursors(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tz := mkTez("tz-1", "team-1", "alice", now)
	recipients := []models.TezRecipient{{TezID: "tz-1", UserID: "bob", DeliveredAt: now}}
	if err := SaveTez(ctx, tz, nil, recipients, nil); err != nil {
		t.Fatalf("SaveTez: %v", err)
	}

	unread, err := UnreadByTeam(ctx, "bob")
	if err != nil {
		t.Fatalf("UnreadByTeam: %v", err)
	}
	if unread["team-1"] != 1 {
		t.Fatalf("unread = %v, want team-1:1", unread)
	}

	ts := now.Add(time.Second).Format(TimeFormat)
	if err := MarkTezRead(ctx, "tz-1", "bob", ts); err != nil {
		t.Fatalf("MarkTezRead: %v", err)
	}
	unread, err = UnreadByTeam(ctx, "bob")
	if err != nil {
		t.Fatalf("UnreadByTeam: %v", err)
	}
	if unread["team-1"] != 0 {
		t.Fatalf("unread after read = %v, want 0", unread)
	}

	// Re-marking keeps the first read timestamp.
	rows, err := ListTezRecipients(ctx, "tz-1")
	if err != nil || len(rows) != 1 || rows[0].ReadAt == nil {
		t.Fatalf("recipients = %+v, %v", rows, err)
	}
	first := *rows[0].ReadAt
	if err := MarkTezRead(ctx, "tz-1", "bob", now.Add(time.Hour).Format(TimeFormat)); err != nil {
		t.Fatalf("MarkTezRead again: %v", err)
	}
	rows, _ = ListTezRecipients(ctx, "tz-1")
	if !rows[0].ReadAt.Equal(first) {
		t.Fatal("read_at was overwritten")
	}

	if err := AckTez(ctx, "tz-1", "bob", ts); err != nil {
		t.Fatalf("AckTez: %v", err)
	}
	if err := AckTez(ctx, "tz-1", "mallory", ts); err != ErrNotFound {
		t.Fatalf("AckTez off roster = %v, want ErrNotFound", err)
	}

	ok, err := IsTezRecipient(ctx, "tz-1", "bob")
	if err != nil || !ok {
		t.Fatalf("IsTezRecipient(bob) = %v, %v", ok, err)
	}
}

func TestDMDedup(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if DMKey("bob", "alice") != DMKey("alice", "bob") {
		t.Fatal("DMKey is order sensitive")
	}

	conv := models.Conversation{ID: "conv-1", Type: models.ConversationDM, CreatedBy: "alice", CreatedAt: now, UpdatedAt: now}
	members := []models.ConversationMember{
		{ConversationID: "conv-1", UserID: "alice", JoinedAt: now},
		{ConversationID: "conv-1", UserID: "bob", JoinedAt: now},
	}
	if err := CreateConversation(ctx, conv, members); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		id, err := FindDM(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("FindDM(%v): %v", pair, err)
		}
		if id != "conv-1" {
			t.Fatalf("FindDM(%v) = %q, want conv-1", pair, id)
		}
	}

	// A second DM row over the same pair violates the unique dm_key.
	dup := models.Conversation{ID: "conv-2", Type: models.ConversationDM, CreatedBy: "bob", CreatedAt: now, UpdatedAt: now}
	if err := CreateConversation(ctx, dup, members); err == nil {
		t.Fatal("expected unique violation for duplicate DM")
	}

	if _, err := FindDM(ctx, "alice", "carol"); err != ErrNotFound {
		t.Fatalf("FindDM(alice, carol) = %v, want ErrNotFound", err)
	}
}

func TestOutboxClaimOrderingAndSettle(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	enqueue := func(id, host string, created time.Time) {
		t.Helper()
		err := EnqueueDelivery(ctx, models.OutboundDelivery{
			ID: id, TargetHost: host, Bundle: "{}", Status: models.DeliveryQueued,
			NextAttemptAt: created, CreatedAt: created, UpdatedAt: created,
		})
		if err != nil {
			t.Fatalf("EnqueueDelivery(%s): %v", id, err)
		}
	}
	enqueue("d3", "relay-b.example", base.Add(2*time.Second))
	enqueue("d1", "relay-a.example", base)
	enqueue("d2", "relay-b.example", base.Add(time.Second))

	due, err := ClaimDueDeliveries(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ClaimDueDeliveries: %v", err)
	}
	want := []string{"d1", "d2", "d3"}
	if len(due) != 3 {
		t.Fatalf("claimed %d rows, want 3", len(due))
	}
	for i, id := range want {
		if due[i].ID != id {
			t.Fatalf("claim order[%d] = %q, want %q", i, due[i].ID, id)
		}
	}

	// Claimed rows are in flight; a second claim finds nothing.
	again, err := ClaimDueDeliveries(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second claim returned %d rows, want 0", len(again))
	}

	now := time.Now().UTC()
	if err := SettleDelivery(ctx, "d1", models.DeliverySent, 1, now); err != nil {
		t.Fatalf("SettleDelivery: %v", err)
	}
	if err := SettleDelivery(ctx, "d2", models.DeliveryQueued, 1, now.Add(2*time.Second)); err != nil {
		t.Fatalf("SettleDelivery requeue: %v", err)
	}

	// The requeued row only becomes due after its backoff horizon.
	due, err = ClaimDueDeliveries(ctx, now.Add(time.Second), 10)
	if err != nil || len(due) != 0 {
		t.Fatalf("claim before horizon = %d rows, %v", len(due), err)
	}
	due, err = ClaimDueDeliveries(ctx, now.Add(3*time.Second), 10)
	if err != nil || len(due) != 1 || due[0].ID != "d2" {
		t.Fatalf("claim after horizon = %+v, %v", due, err)
	}

	n, err := PurgeSettledDeliveries(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeSettledDeliveries: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d rows, want 1 (the sent row)", n)
	}
}

func TestPeerRegistry(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := models.Peer{Host: "relay-b.example", ServerID: "abcdef0123456789", PublicKey: "cGs=", TrustLevel: models.TrustPending, FirstSeenAt: now}
	if err := UpsertPeer(ctx, p); err != nil {
		t.Fatalf("UpsertPeer: %v", err)
	}

	got, err := GetPeerByServerID(ctx, "abcdef0123456789")
	if err != nil {
		t.Fatalf("GetPeerByServerID: %v", err)
	}
	if got.Host != "relay-b.example" {
		t.Fatalf("host = %q", got.Host)
	}

	if err := SetPeerTrust(ctx, "relay-b.example", models.TrustTrusted); err != nil {
		t.Fatalf("SetPeerTrust: %v", err)
	}
	// Re-registration must not reset the operator's decision.
	if err := UpsertPeer(ctx, p); err != nil {
		t.Fatalf("UpsertPeer again: %v", err)
	}
	got, _ = GetPeer(ctx, "relay-b.example")
	if got.TrustLevel != models.TrustTrusted {
		t.Fatalf("trust after re-register = %q, want trusted", got.TrustLevel)
	}

	if err := DeletePeer(ctx, "relay-b.example"); err != nil {
		t.Fatalf("DeletePeer: %v", err)
	}
	if _, err := GetPeer(ctx, "relay-b.example"); err != ErrNotFound {
		t.Fatalf("GetPeer after delete = %v, want ErrNotFound", err)
	}
}

func TestAuditAppendAndFilter(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []models.AuditEntry{
		{ID: "a1", TeamID: "team-1", ActorUserID: "alice", Action: models.AuditTezShared, TargetType: "tez", TargetID: "tz-1", CreatedAt: now},
		{ID: "a2", TeamID: "team-1", ActorUserID: "bob", Action: models.AuditTezRead, TargetType: "tez", TargetID: "tz-1", CreatedAt: now.Add(time.Second)},
		{ID: "a3", TeamID: "team-2", ActorUserID: "carol", Action: models.AuditTezShared, TargetType: "tez", TargetID: "tz-2", CreatedAt: now.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := AppendAudit(ctx, e); err != nil {
			t.Fatalf("AppendAudit(%s): %v", e.ID, err)
		}
	}

	got, err := ListAudit(ctx, string(models.AuditTezShared), "", 10)
	if err != nil {
		t.Fatalf("ListAudit by action: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("by action = %d rows, want 2", len(got))
	}

	got, err = ListAudit(ctx, "", "team-1", 10)
	if err != nil {
		t.Fatalf("ListAudit by team: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("by team = %d rows, want 2", len(got))
	}

	got, err = ListAudit(ctx, "", "", 2)
	if err != nil || len(got) != 2 {
		t.Fatalf("limited list = %d rows, %v", len(got), err)
	}
	// Newest first.
	if got[0].ID != "a3" {
		t.Fatalf("first row = %q, want a3", got[0].ID)
	}
}

func TestTimestampStringsSortChronologically(t *testing.T) {
	openStore(t)
	ctx := context.Background()

	// A whole-second timestamp must not sort after one half a second
	// later; the fixed-width fraction keeps string order chronological.
	whole := time.Date(2026, 8, 24, 12, 0, 5, 0, time.UTC)
	later := whole.Add(500 * time.Millisecond)
	if fmtTime(whole) >= fmtTime(later) {
		t.Fatalf("string order inverted: %q >= %q", fmtTime(whole), fmtTime(later))
	}
	if len(fmtTime(whole)) != len(fmtTime(later)) {
		t.Fatalf("widths differ: %q vs %q", fmtTime(whole), fmtTime(later))
	}

	team := models.Team{ID: "team-ts", Name: "Clock", CreatedBy: "alice", CreatedAt: whole, UpdatedAt: whole}
	if err := CreateTeam(ctx, team); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	for id, created := range map[string]time.Time{"tz-whole": whole, "tz-later": later} {
		if err := SaveTez(ctx, mkTez(id, "team-ts", "alice", created), nil, nil, nil); err != nil {
			t.Fatalf("SaveTez(%s): %v", id, err)
		}
	}

	out, _, err := StreamTeam(ctx, "team-ts", 10, time.Time{})
	if err != nil {
		t.Fatalf("StreamTeam: %v", err)
	}
	if len(out) != 2 || out[0].ID != "tz-later" || out[1].ID != "tz-whole" {
		t.Fatalf("stream order = %+v", out)
	}

	// Paging before the fractional row still reaches the whole second.
	out, _, err = StreamTeam(ctx, "team-ts", 10, later)
	if err != nil {
		t.Fatalf("StreamTeam before: %v", err)
	}
	if len(out) != 1 || out[0].ID != "tz-whole" {
		t.Fatalf("page = %+v, want tz-whole", out)
	}
}
