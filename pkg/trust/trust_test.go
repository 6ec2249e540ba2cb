package trust

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

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

func freshKey(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return base64.StdEncoding.EncodeToString(pub)
}

func TestRegisterAllowlistStartsPending(t *testing.T) {
	openStore(t)
	p, err := Register(context.Background(), ModeAllowlist, "relay-b.example", freshKey(t), "Relay B")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.TrustLevel != models.TrustPending {
		t.Fatalf("trust = %q, want pending", p.TrustLevel)
	}
	if len(p.ServerID) != 16 {
		t.Fatalf("server id = %q, want 16 hex chars", p.ServerID)
	}
}

func TestRegisterOpenStartsTrusted(t *testing.T) {
	openStore(t)
	p, err := Register(context.Background(), ModeOpen, "relay-b.example", freshKey(t), "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.TrustLevel != models.TrustTrusted {
		t.Fatalf("trust = %q, want trusted", p.TrustLevel)
	}
}

func TestRegisterRejectsBadKey(t *testing.T) {
	openStore(t)
	if _, err := Register(context.Background(), ModeOpen, "relay-b.example", "not-a-key", ""); apierr.From(err).Code != apierr.CodeValidation {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}
	if _, err := Register(context.Background(), ModeOpen, "", freshKey(t), ""); apierr.From(err).Code != apierr.CodeValidation {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}
}

func TestReRegisterKeepsOperatorDecision(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	key := freshKey(t)

	if _, err := Register(ctx, ModeAllowlist, "relay-b.example", key, ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := SetLevel(ctx, "relay-b.example", models.TrustTrusted); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	p, err := Register(ctx, ModeAllowlist, "relay-b.example", key, "renamed")
	if err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	if p.TrustLevel != models.TrustTrusted {
		t.Fatalf("trust after re-register = %q, want trusted", p.TrustLevel)
	}
}

func TestAdmitDecisions(t *testing.T) {
	cases := []struct {
		level models.TrustLevel
		code  apierr.Code
	}{
		{models.TrustTrusted, ""},
		{models.TrustPending, apierr.CodeServerNotTrusted},
		{models.TrustBlocked, apierr.CodeServerBlocked},
	}
	for _, tc := range cases {
		err := Admit(models.Peer{TrustLevel: tc.level})
		if tc.code == "" {
			if err != nil {
				t.Fatalf("Admit(%s): %v", tc.level, err)
			}
			continue
		}
		if apierr.From(err).Code != tc.code {
			t.Fatalf("Admit(%s) = %v, want %s", tc.level, err, tc.code)
		}
	}
}

func TestSetLevelCannotDemoteToPending(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	if _, err := Register(ctx, ModeOpen, "relay-b.example", freshKey(t), ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := SetLevel(ctx, "relay-b.example", models.TrustPending); apierr.From(err).Code != apierr.CodeValidation {
		t.Fatalf("demote err = %v, want VALIDATION_ERROR", err)
	}
	// Block, then unblock back to trusted.
	if _, err := SetLevel(ctx, "relay-b.example", models.TrustBlocked); err != nil {
		t.Fatalf("block: %v", err)
	}
	if _, err := SetLevel(ctx, "relay-b.example", models.TrustTrusted); err != nil {
		t.Fatalf("unblock: %v", err)
	}
}

func TestBlockBypassesCache(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	p, err := Register(ctx, ModeOpen, "relay-b.example", freshKey(t), "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Warm the cache, then block; the next resolve must see the block.
	if _, err := ResolvePeer(ctx, p.ServerID); err != nil {
		t.Fatalf("ResolvePeer: %v", err)
	}
	if _, err := SetLevel(ctx, "relay-b.example", models.TrustBlocked); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	got, err := ResolvePeer(ctx, p.ServerID)
	if err != nil {
		t.Fatalf("ResolvePeer after block: %v", err)
	}
	if Admit(got) == nil {
		t.Fatal("blocked peer was admitted")
	}
}

func TestResolvePeerUnknown(t *testing.T) {
	openStore(t)
	if _, err := ResolvePeer(context.Background(), "0000000000000000"); apierr.From(err).Code != apierr.CodeUnknownPeer {
		t.Fatalf("err = %v, want UNKNOWN_PEER", err)
	}
}
