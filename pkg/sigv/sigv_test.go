package sigv

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/identity"
)

func testIdentity(t *testing.T, host string) *identity.Identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	id := &identity.Identity{Host: host, PublicKey: pub, PrivateKey: priv}
	id.ServerID = identity.ServerIDFromPublicKey(id.PublicKeyBase64())
	return id
}

// signedRequest builds an outbound request signed at now and re-reads it
// as the receiving side would see it.
func signedRequest(t *testing.T, id *identity.Identity, body []byte, now time.Time) *http.Request {
	t.Helper()
	out, err := http.NewRequest(http.MethodPost, "https://peer.example/federation/inbox", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	Sign(id, out, body, now)

	in := httptest.NewRequest(http.MethodPost, "https://peer.example/federation/inbox", bytes.NewReader(body))
	for _, h := range []string{"Date", "Digest", "Signature", "Signature-Input"} {
		in.Header.Set(h, out.Header.Get(h))
	}
	return in
}

func lookupFor(id *identity.Identity) KeyLookup {
	return func(_ context.Context, keyID string) (ed25519.PublicKey, error) {
		if keyID != id.ServerID {
			return nil, apierr.New(apierr.CodeUnknownPeer, "unknown signature keyId")
		}
		return id.PublicKey, nil
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	id := testIdentity(t, "relay-a.example")
	body := []byte(`{"hello":"world"}`)
	now := time.Now().UTC()

	r := signedRequest(t, id, body, now)
	keyID, err := Verify(context.Background(), r, body, now, lookupFor(id))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if keyID != id.ServerID {
		t.Fatalf("keyID = %q, want %q", keyID, id.ServerID)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	id := testIdentity(t, "relay-a.example")
	body := []byte(`{"amount":100}`)
	now := time.Now().UTC()

	r := signedRequest(t, id, body, now)
	tampered := []byte(`{"amount":900}`)
	_, err := Verify(context.Background(), r, tampered, now, lookupFor(id))
	if apierr.From(err).Code != apierr.CodeBodyModified {
		t.Fatalf("code = %v, want BODY_MODIFIED", apierr.From(err).Code)
	}
}

func TestVerifyRejectsSingleByteFlip(t *testing.T) {
	id := testIdentity(t, "relay-a.example")
	body := []byte(`{"surface_text":"ship it"}`)
	now := time.Now().UTC()

	r := signedRequest(t, id, body, now)
	flipped := append([]byte(nil), body...)
	flipped[10] ^= 0x01
	_, err := Verify(context.Background(), r, flipped, now, lookupFor(id))
	if err == nil {
		t.Fatal("expected verification failure for flipped byte")
	}
}

func TestVerifyRejectsStaleDate(t *testing.T) {
	id := testIdentity(t, "relay-a.example")
	body := []byte(`{}`)
	signedAt := time.Now().UTC().Add(-6 * time.Minute)

	r := signedRequest(t, id, body, signedAt)
	_, err := Verify(context.Background(), r, body, time.Now().UTC(), lookupFor(id))
	if apierr.From(err).Code != apierr.CodeInvalidSignature {
		t.Fatalf("code = %v, want INVALID_SIGNATURE", apierr.From(err).Code)
	}
}

func TestVerifyAcceptsWithinSkew(t *testing.T) {
	id := testIdentity(t, "relay-a.example")
	body := []byte(`{}`)
	signedAt := time.Now().UTC().Add(-4 * time.Minute)

	r := signedRequest(t, id, body, signedAt)
	if _, err := Verify(context.Background(), r, body, time.Now().UTC(), lookupFor(id)); err != nil {
		t.Fatalf("Verify within skew: %v", err)
	}
}

func TestVerifyRejectsUnsignedRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "https://peer.example/federation/inbox", nil)
	_, err := Verify(context.Background(), r, nil, time.Now().UTC(), lookupFor(testIdentity(t, "x")))
	if apierr.From(err).Code != apierr.CodeMissingSignature {
		t.Fatalf("code = %v, want MISSING_SIGNATURE", apierr.From(err).Code)
	}
}

func TestVerifyPropagatesLookupError(t *testing.T) {
	id := testIdentity(t, "relay-a.example")
	body := []byte(`{}`)
	now := time.Now().UTC()

	r := signedRequest(t, id, body, now)
	want := apierr.New(apierr.CodeUnknownPeer, "unknown signature keyId")
	_, err := Verify(context.Background(), r, body, now, func(context.Context, string) (ed25519.PublicKey, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want lookup error", err)
	}
}

func TestCanonicalStringShape(t *testing.T) {
	got := CanonicalString("post", "/federation/inbox", "peer.example", "2026-01-02T03:04:05Z", "SHA-256=abc")
	want := "@method: POST\n@path: /federation/inbox\nhost: peer.example\ndate: 2026-01-02T03:04:05Z\ndigest: SHA-256=abc"
	if got != want {
		t.Fatalf("canonical string mismatch:\n%s", got)
	}
}
