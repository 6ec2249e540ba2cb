package bundle

import (
	"strings"
	"testing"
	"time"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/models"
)

func sampleTez() models.Tez {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.Tez{
		ID:           "tez-1",
		ThreadID:     "tez-1",
		SurfaceText:  "deploy is done",
		Type:         models.TypeUpdate,
		Urgency:      models.UrgencyNormal,
		SenderUserID: "alice",
		Visibility:   models.VisibilityDM,
		CreatedAt:    now,
	}
}

func sealed(t *testing.T) Bundle {
	t.Helper()
	b, err := New("relay-a.example", sampleTez(), nil, []string{"bob@relay-b.example"}, time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestSealedBundleValidates(t *testing.T) {
	b := sealed(t)
	if b.BundleHash == "" {
		t.Fatal("sealed bundle has no hash")
	}
	if err := Validate(b); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestHashIgnoresStoredHash(t *testing.T) {
	b := sealed(t)
	h1, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b.BundleHash = "something else"
	h2, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Fatal("hash depends on the stored hash field")
	}
}

func TestHashSurvivesWireReordering(t *testing.T) {
	b := sealed(t)
	// The same bundle serialized with keys in a different order must
	// still hash identically after canonicalization.
	reordered := []byte(`{"to":["bob@relay-b.example"],"sender_server":"relay-a.example","protocol_version":"1.0","bundle_type":"federation_delivery","from":"alice@relay-a.example","created_at":"` + b.CreatedAt + `","tez":{"visibility":"dm","urgency":"normal","type":"update","thread_id":"tez-1","surface_text":"deploy is done","sender_user_id":"alice","id":"tez-1","created_at":"` + b.Tez.CreatedAt + `"},"bundle_hash":"` + b.BundleHash + `"}`)
	got, err := Decode(reordered)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := Validate(got); err != nil {
		t.Fatalf("Validate reordered: %v", err)
	}
}

func TestValidateCatchesTamperedPayload(t *testing.T) {
	b := sealed(t)
	b.Tez.SurfaceText = "deploy is NOT done"
	err := Validate(b)
	e := apierr.From(err)
	if e.Code != apierr.CodeInvalidBundle {
		t.Fatalf("code = %v, want INVALID_BUNDLE", e.Code)
	}
	if !strings.Contains(e.Message, "hash mismatch") {
		t.Fatalf("message = %q, want hash mismatch", e.Message)
	}
}

func TestValidateOrdering(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Bundle)
		want   string
	}{
		{"unsupported type", func(b *Bundle) { b.BundleType = "gossip" }, "unsupported bundle type"},
		{"unsupported version", func(b *Bundle) { b.ProtocolVersion = "9.9" }, "unsupported protocol version"},
		{"missing sender server", func(b *Bundle) { b.SenderServer = "" }, "missing sender_server"},
		{"missing tez id", func(b *Bundle) { b.Tez.ID = "" }, "missing tez id"},
		{"empty to", func(b *Bundle) { b.To = nil }, "empty to list"},
		{"missing hash", func(b *Bundle) { b.BundleHash = "" }, "missing bundle_hash"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := sealed(t)
			tc.mutate(&b)
			err := Validate(b)
			if err == nil {
				t.Fatal("expected validation failure")
			}
			if !strings.Contains(apierr.From(err).Message, tc.want) {
				t.Fatalf("message = %q, want %q", apierr.From(err).Message, tc.want)
			}
		})
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if apierr.From(err).Code != apierr.CodeInvalidBundle {
		t.Fatalf("code = %v, want INVALID_BUNDLE", apierr.From(err).Code)
	}
}
