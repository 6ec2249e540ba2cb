package identity

import (
	"crypto/ed25519"
	"testing"
)

func TestLoadOrCreatePersistsKeypair(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreate(dir, "relay-a.example")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if first.ServerID == "" || len(first.ServerID) != 16 {
		t.Fatalf("ServerID = %q, want 16 hex chars", first.ServerID)
	}

	second, err := LoadOrCreate(dir, "relay-a.example")
	if err != nil {
		t.Fatalf("LoadOrCreate again: %v", err)
	}
	if !first.PublicKey.Equal(second.PublicKey) {
		t.Fatal("public key changed across restarts")
	}
	if first.ServerID != second.ServerID {
		t.Fatalf("server id changed: %q vs %q", first.ServerID, second.ServerID)
	}
}

func TestLoadOrCreateRequiresHost(t *testing.T) {
	if _, err := LoadOrCreate(t.TempDir(), ""); err == nil {
		t.Fatal("expected error for empty host")
	}
}

func TestServerIDDerivation(t *testing.T) {
	id, err := LoadOrCreate(t.TempDir(), "relay-a.example")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	// Peers derive the id from the published base64 key; both sides must
	// agree.
	if got := ServerIDFromPublicKey(id.PublicKeyBase64()); got != id.ServerID {
		t.Fatalf("derived %q, stored %q", got, id.ServerID)
	}
}

func TestSignVerifies(t *testing.T) {
	id, err := LoadOrCreate(t.TempDir(), "relay-a.example")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	msg := []byte("canonical string")
	if !ed25519.Verify(id.PublicKey, msg, id.Sign(msg)) {
		t.Fatal("signature did not verify")
	}
}
