package federation

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/audit"
	"tezrelay/pkg/bundle"
	"tezrelay/pkg/logger"
	"tezrelay/pkg/models"
	"tezrelay/pkg/sigv"
	"tezrelay/pkg/store"
	"tezrelay/pkg/trust"
)

// InboxResult is the admission outcome returned to the sending relay.
type InboxResult struct {
	Accepted    bool     `json:"accepted"`
	LocalTezIDs []string `json:"localTezIds"`
	NotFound    []string `json:"notFound"`
}

// StatusOf maps an admission result onto its HTTP status: 207 when any
// recipient could not be resolved, 200 otherwise.
func (r InboxResult) StatusOf() int {
	if len(r.NotFound) > 0 {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}

// Inbox admits federated deliveries for one relay host.
type Inbox struct {
	Host string
}

// Admit runs the admission pipeline over a signed inbound request. The
// checks run strictly in order: signature, sender trust, bundle
// integrity, recipient resolution, persistence. Any failure
// short-circuits before the store is written.
func (ib *Inbox) Admit(ctx context.Context, r *http.Request, body []byte) (InboxResult, error) {
	keyID, err := sigv.Verify(ctx, r, body, time.Now().UTC(), trust.PublicKeyLookup)
	if err != nil {
		// A signer we have never seen cannot be trusted; everything
		// else is a signature failure.
		if apierr.From(err).Code == apierr.CodeUnknownPeer {
			return InboxResult{}, apierr.New(apierr.CodeServerNotTrusted, "server is not trusted")
		}
		return InboxResult{}, err
	}
	peer, err := trust.ResolvePeer(ctx, keyID)
	if err != nil {
		return InboxResult{}, err
	}
	if err := trust.Admit(peer); err != nil {
		return InboxResult{}, err
	}

	b, err := bundle.Decode(body)
	if err != nil {
		return InboxResult{}, err
	}
	if err := bundle.Validate(b); err != nil {
		return InboxResult{}, err
	}

	res := InboxResult{Accepted: true, LocalTezIDs: []string{}, NotFound: []string{}}
	var localUsers []string
	for _, addr := range b.To {
		id, host := ParseAddress(addr)
		if host != "" && host != ib.Host {
			logger.Warn("inbox_foreign_recipient_ignored", "address", addr, "peer", peer.Host)
			continue
		}
		if _, err := store.GetContact(ctx, id); errors.Is(err, store.ErrNotFound) {
			res.NotFound = append(res.NotFound, addr)
			continue
		} else if err != nil {
			return InboxResult{}, err
		}
		localUsers = append(localUsers, id)
	}

	if err := ib.persist(ctx, peer, b, localUsers); err != nil {
		return InboxResult{}, err
	}
	res.LocalTezIDs = append(res.LocalTezIDs, b.Tez.ID)

	audit.Record(ctx, models.AuditTezReceived, b.From, "tez", b.Tez.ID, "", map[string]any{
		"senderServer": b.SenderServer,
		"bundleHash":   b.BundleHash,
		"recipients":   len(localUsers),
	})
	return res, nil
}

// persist stores the federated tez under the sender's original id so
// provenance survives relaying. Redelivery of an already-known tez is a
// no-op.
func (ib *Inbox) persist(ctx context.Context, peer models.Peer, b bundle.Bundle, localUsers []string) error {
	if _, err := store.GetTez(ctx, b.Tez.ID); err == nil {
		logger.Info("inbox_duplicate_delivery", "tez", b.Tez.ID, "peer", peer.Host)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	created := now
	if ts, err := time.Parse(time.RFC3339Nano, b.Tez.CreatedAt); err == nil {
		created = ts.UTC()
	}
	threadID := b.Tez.ThreadID
	if threadID == "" {
		threadID = b.Tez.ID
	}
	t := models.Tez{
		ID:              b.Tez.ID,
		ThreadID:        threadID,
		ParentTezID:     b.Tez.ParentTezID,
		SurfaceText:     b.Tez.SurfaceText,
		Type:            orType(b.Tez.Type),
		Urgency:         orUrgency(b.Tez.Urgency),
		ActionRequested: b.Tez.ActionRequested,
		SenderUserID:    b.From,
		Visibility:      orVisibility(b.Tez.Visibility),
		Status:          models.StatusActive,
		CreatedAt:       created,
		UpdatedAt:       now,
	}
	var layers []models.TezContext
	for _, c := range b.Context {
		layers = append(layers, models.TezContext{
			ID:          uuid.NewString(),
			TezID:       t.ID,
			Layer:       models.ContextLayer(c.Layer),
			Content:     c.Content,
			MimeType:    c.MimeType,
			Confidence:  c.Confidence,
			Source:      models.ContextSource(c.Source),
			DerivedFrom: c.DerivedFrom,
			CreatedBy:   models.SystemUser,
			CreatedAt:   now,
		})
	}
	var recipients []models.TezRecipient
	for _, uid := range localUsers {
		recipients = append(recipients, models.TezRecipient{TezID: t.ID, UserID: uid, DeliveredAt: now})
	}
	return store.SaveTez(ctx, t, layers, recipients, nil)
}

func orType(s string) models.TezType {
	if models.ValidTezType(s) {
		return models.TezType(s)
	}
	return models.TypeNote
}

func orUrgency(s string) models.Urgency {
	if models.ValidUrgency(s) {
		return models.Urgency(s)
	}
	return models.UrgencyNormal
}

func orVisibility(s string) models.Visibility {
	switch models.Visibility(s) {
	case models.VisibilityTeam, models.VisibilityDM, models.VisibilityPrivate:
		return models.Visibility(s)
	}
	return models.VisibilityDM
}
