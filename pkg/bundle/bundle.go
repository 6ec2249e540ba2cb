// Package bundle defines the content-addressed federation envelope. A
// bundle carries one Tez, its context layers and the routing addresses
// for a single target host, and is sealed by a hash over its canonical
// JSON form. The receiving relay recomputes the hash independently of
// the transport signature, so a payload altered after sealing is caught
// even when the HTTP signature verifies.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gowebpki/jcs"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/models"
)

// ProtocolVersion is the wire protocol revision this relay speaks.
const ProtocolVersion = "1.0"

// TypeFederationDelivery is the only bundle type currently defined.
const TypeFederationDelivery = "federation_delivery"

// WireTez is the Tez as transmitted between relays. Local recipient
// state and conversation bindings stay home.
type WireTez struct {
	ID              string `json:"id"`
	ThreadID        string `json:"thread_id"`
	ParentTezID     string `json:"parent_tez_id,omitempty"`
	SurfaceText     string `json:"surface_text"`
	Type            string `json:"type"`
	Urgency         string `json:"urgency"`
	ActionRequested string `json:"action_requested,omitempty"`
	SenderUserID    string `json:"sender_user_id"`
	Visibility      string `json:"visibility"`
	CreatedAt       string `json:"created_at"`
}

// WireContext is one context layer as transmitted. Order in the bundle
// is the order layers were attached.
type WireContext struct {
	Layer       string `json:"layer"`
	Content     string `json:"content"`
	MimeType    string `json:"mime_type,omitempty"`
	Confidence  *int   `json:"confidence,omitempty"`
	Source      string `json:"source,omitempty"`
	DerivedFrom string `json:"derived_from,omitempty"`
}

// Bundle is the federation envelope.
type Bundle struct {
	ProtocolVersion string        `json:"protocol_version"`
	BundleType      string        `json:"bundle_type"`
	SenderServer    string        `json:"sender_server"`
	Tez             WireTez       `json:"tez"`
	Context         []WireContext `json:"context"`
	From            string        `json:"from"`
	To              []string      `json:"to"`
	CreatedAt       string        `json:"created_at"`
	BundleHash      string        `json:"bundle_hash,omitempty"`
}

// New builds a sealed bundle for one target host's recipient slice.
func New(senderHost string, t models.Tez, layers []models.TezContext, to []string, now time.Time) (Bundle, error) {
	wt := WireTez{
		ID:              t.ID,
		ThreadID:        t.ThreadID,
		ParentTezID:     t.ParentTezID,
		SurfaceText:     t.SurfaceText,
		Type:            string(t.Type),
		Urgency:         string(t.Urgency),
		ActionRequested: t.ActionRequested,
		SenderUserID:    t.SenderUserID,
		Visibility:      string(t.Visibility),
		CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	var wc []WireContext
	for _, l := range layers {
		wc = append(wc, WireContext{
			Layer:       string(l.Layer),
			Content:     l.Content,
			MimeType:    l.MimeType,
			Confidence:  l.Confidence,
			Source:      string(l.Source),
			DerivedFrom: l.DerivedFrom,
		})
	}
	b := Bundle{
		ProtocolVersion: ProtocolVersion,
		BundleType:      TypeFederationDelivery,
		SenderServer:    senderHost,
		Tez:             wt,
		Context:         wc,
		From:            t.SenderUserID + "@" + senderHost,
		To:              to,
		CreatedAt:       now.UTC().Format(time.RFC3339Nano),
	}
	h, err := Hash(b)
	if err != nil {
		return Bundle{}, err
	}
	b.BundleHash = h
	return b, nil
}

// Hash computes hex(sha256) over the canonical JSON of b with the hash
// field cleared. Canonical form sorts object keys lexicographically at
// every depth and strips insignificant whitespace; array order is kept.
func Hash(b Bundle) (string, error) {
	b.BundleHash = ""
	raw, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Validate runs the admission checks in order and reports the first
// failure as an INVALID_BUNDLE error naming that check.
func Validate(b Bundle) error {
	switch {
	case b.BundleType != TypeFederationDelivery:
		return apierr.Newf(apierr.CodeInvalidBundle, "unsupported bundle type %q", b.BundleType)
	case b.ProtocolVersion != ProtocolVersion:
		return apierr.Newf(apierr.CodeInvalidBundle, "unsupported protocol version %q", b.ProtocolVersion)
	case b.SenderServer == "":
		return apierr.New(apierr.CodeInvalidBundle, "missing sender_server")
	case b.Tez.ID == "":
		return apierr.New(apierr.CodeInvalidBundle, "missing tez id")
	case b.Tez.SurfaceText == "":
		return apierr.New(apierr.CodeInvalidBundle, "missing tez surface_text")
	case b.Tez.SenderUserID == "":
		return apierr.New(apierr.CodeInvalidBundle, "missing tez sender")
	case b.From == "":
		return apierr.New(apierr.CodeInvalidBundle, "missing from address")
	case len(b.To) == 0:
		return apierr.New(apierr.CodeInvalidBundle, "empty to list")
	case b.BundleHash == "":
		return apierr.New(apierr.CodeInvalidBundle, "missing bundle_hash")
	}
	want, err := Hash(b)
	if err != nil {
		return apierr.New(apierr.CodeInvalidBundle, "uncanonicalizable bundle")
	}
	if want != b.BundleHash {
		return apierr.New(apierr.CodeInvalidBundle, "hash mismatch")
	}
	return nil
}

// Decode parses raw JSON into a Bundle, reporting malformed input as
// INVALID_BUNDLE.
func Decode(raw []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bundle{}, apierr.New(apierr.CodeInvalidBundle, "malformed bundle json")
	}
	return b, nil
}

// Encode renders the sealed bundle for the outbox.
func Encode(b Bundle) ([]byte, error) { return json.Marshal(b) }
