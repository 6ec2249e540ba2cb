// Package messaging implements the tez lifecycle: share, reply, get,
// thread, stream and the read and acknowledge cursors. All persistence
// for one admission happens in a single store transaction; remote
// recipients become sealed bundles on the outbound queue inside that
// same transaction.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tezrelay/pkg/acl"
	"tezrelay/pkg/apierr"
	"tezrelay/pkg/audit"
	"tezrelay/pkg/bundle"
	"tezrelay/pkg/config"
	"tezrelay/pkg/federation"
	"tezrelay/pkg/logger"
	"tezrelay/pkg/models"
	"tezrelay/pkg/store"
)

// Service carries the relay host and payload bounds. The host decides
// which recipient addresses are local.
type Service struct {
	Host   string
	Limits config.LimitsConfig
}

// ContextInput is one context layer as submitted by a client.
type ContextInput struct {
	Layer       string `json:"layer"`
	Content     string `json:"content"`
	MimeType    string `json:"mimeType,omitempty"`
	Confidence  *int   `json:"confidence,omitempty"`
	Source      string `json:"source,omitempty"`
	DerivedFrom string `json:"derivedFrom,omitempty"`
}

// ShareInput is the share request payload.
type ShareInput struct {
	TeamID          string         `json:"teamId,omitempty"`
	ConversationID  string         `json:"conversationId,omitempty"`
	SurfaceText     string         `json:"surfaceText"`
	Type            string         `json:"type,omitempty"`
	Urgency         string         `json:"urgency,omitempty"`
	ActionRequested string         `json:"actionRequested,omitempty"`
	Visibility      string         `json:"visibility,omitempty"`
	Recipients      []string       `json:"recipients,omitempty"`
	Context         []ContextInput `json:"context,omitempty"`
}

// ReplyInput is the reply request payload; scope and visibility are
// inherited from the parent.
type ReplyInput struct {
	SurfaceText     string         `json:"surfaceText"`
	Type            string         `json:"type,omitempty"`
	Urgency         string         `json:"urgency,omitempty"`
	ActionRequested string         `json:"actionRequested,omitempty"`
	Recipients      []string       `json:"recipients,omitempty"`
	Context         []ContextInput `json:"context,omitempty"`
}

// TezView is the full read shape: the tez, its context layers in
// insertion order and its recipient roster.
type TezView struct {
	models.Tez
	Context    []models.TezContext   `json:"context"`
	Recipients []models.TezRecipient `json:"recipients"`
}

// ThreadView is the thread listing shape.
type ThreadView struct {
	ThreadID     string       `json:"threadId"`
	RootTezID    string       `json:"rootTezId"`
	MessageCount int          `json:"messageCount"`
	Messages     []models.Tez `json:"messages"`
}

func (s *Service) validatePayload(surface, typ, urg string, ctxItems []ContextInput, recipients []string) error {
	if surface == "" {
		return apierr.Validation("surfaceText is required")
	}
	if int64(len(surface)) > s.Limits.MaxTezSizeBytes() {
		return apierr.Validation("surfaceText exceeds size limit")
	}
	if typ != "" && !models.ValidTezType(typ) {
		return apierr.Validation("invalid tez type")
	}
	if urg != "" && !models.ValidUrgency(urg) {
		return apierr.Validation("invalid urgency")
	}
	if len(ctxItems) > s.Limits.ContextItems() {
		return apierr.Newf(apierr.CodeValidation, "too many context items (max %d)", s.Limits.ContextItems())
	}
	if len(recipients) > s.Limits.Recipients() {
		return apierr.Newf(apierr.CodeValidation, "too many recipients (max %d)", s.Limits.Recipients())
	}
	for _, c := range ctxItems {
		if !models.ValidLayer(c.Layer) {
			return apierr.Newf(apierr.CodeValidation, "invalid context layer %q", c.Layer)
		}
		if c.Content == "" {
			return apierr.Validation("context content is required")
		}
		if c.Confidence != nil && (*c.Confidence < 0 || *c.Confidence > 100) {
			return apierr.Validation("confidence must be between 0 and 100")
		}
		if c.Source != "" && !models.ValidContextSource(c.Source) {
			return apierr.Newf(apierr.CodeValidation, "invalid context source %q", c.Source)
		}
	}
	return nil
}

func buildLayers(tezID, createdBy string, items []ContextInput, now time.Time) []models.TezContext {
	var out []models.TezContext
	for _, c := range items {
		out = append(out, models.TezContext{
			ID:          uuid.NewString(),
			TezID:       tezID,
			Layer:       models.ContextLayer(c.Layer),
			Content:     c.Content,
			MimeType:    c.MimeType,
			Confidence:  c.Confidence,
			Source:      models.ContextSource(c.Source),
			DerivedFrom: c.DerivedFrom,
			CreatedBy:   createdBy,
			CreatedAt:   now,
		})
	}
	return out
}

// buildDeliveries seals one bundle per remote host over that host's
// recipient slice and wraps each in a queued outbound row.
func (s *Service) buildDeliveries(t models.Tez, layers []models.TezContext, remote map[string][]string, now time.Time) ([]models.OutboundDelivery, error) {
	var out []models.OutboundDelivery
	for host, addrs := range remote {
		b, err := bundle.New(s.Host, t, layers, addrs, now)
		if err != nil {
			return nil, err
		}
		raw, err := bundle.Encode(b)
		if err != nil {
			return nil, err
		}
		out = append(out, models.OutboundDelivery{
			ID:            uuid.NewString(),
			TargetHost:    host,
			Bundle:        string(raw),
			Status:        models.DeliveryQueued,
			NextAttemptAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return out, nil
}

// Share admits a new root tez into a team, a conversation, or the
// sender's private scope.
func (s *Service) Share(ctx context.Context, actor string, in ShareInput) (models.Tez, error) {
	if in.TeamID != "" && in.ConversationID != "" {
		return models.Tez{}, apierr.Validation("teamId and conversationId are mutually exclusive")
	}
	if err := s.validatePayload(in.SurfaceText, in.Type, in.Urgency, in.Context, in.Recipients); err != nil {
		return models.Tez{}, err
	}
	if in.TeamID != "" {
		if err := acl.RequireTeamMember(ctx, in.TeamID, actor); err != nil {
			return models.Tez{}, err
		}
	}
	if in.ConversationID != "" {
		if err := acl.RequireConversationMember(ctx, in.ConversationID, actor); err != nil {
			return models.Tez{}, err
		}
	}

	vis := in.Visibility
	if vis == "" {
		switch {
		case in.TeamID != "":
			vis = string(models.VisibilityTeam)
		case in.ConversationID != "":
			vis = string(models.VisibilityDM)
		default:
			vis = string(models.VisibilityPrivate)
		}
	}
	switch models.Visibility(vis) {
	case models.VisibilityTeam, models.VisibilityDM, models.VisibilityPrivate:
	default:
		return models.Tez{}, apierr.Validation("invalid visibility")
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	t := models.Tez{
		ID:              id,
		TeamID:          in.TeamID,
		ConversationID:  in.ConversationID,
		ThreadID:        id,
		SurfaceText:     in.SurfaceText,
		Type:            orDefaultType(in.Type),
		Urgency:         orDefaultUrgency(in.Urgency),
		ActionRequested: in.ActionRequested,
		SenderUserID:    actor,
		Visibility:      models.Visibility(vis),
		Status:          models.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tez, err := s.persist(ctx, t, in.Context, in.Recipients, actor, now)
	if err != nil {
		return models.Tez{}, err
	}
	audit.Record(ctx, models.AuditTezShared, actor, "tez", tez.ID, tez.TeamID, map[string]any{
		"threadId": tez.ThreadID,
	})
	return tez, nil
}

// Reply admits a reply under an existing tez. Scope and visibility are
// inherited; the thread id never changes after the root is inserted.
func (s *Service) Reply(ctx context.Context, actor, parentID string, in ReplyInput) (models.Tez, error) {
	parent, err := store.GetTez(ctx, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Tez{}, apierr.NotFound("tez")
	}
	if err != nil {
		return models.Tez{}, err
	}
	if err := acl.MayAccess(ctx, actor, parent); err != nil {
		return models.Tez{}, err
	}
	if err := s.validatePayload(in.SurfaceText, in.Type, in.Urgency, in.Context, in.Recipients); err != nil {
		return models.Tez{}, err
	}

	now := time.Now().UTC()
	t := models.Tez{
		ID:              uuid.NewString(),
		TeamID:          parent.TeamID,
		ConversationID:  parent.ConversationID,
		ThreadID:        parent.ThreadID,
		ParentTezID:     parent.ID,
		SurfaceText:     in.SurfaceText,
		Type:            orDefaultType(in.Type),
		Urgency:         orDefaultUrgency(in.Urgency),
		ActionRequested: in.ActionRequested,
		SenderUserID:    actor,
		Visibility:      parent.Visibility,
		Status:          models.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tez, err := s.persist(ctx, t, in.Context, in.Recipients, actor, now)
	if err != nil {
		return models.Tez{}, err
	}
	audit.Record(ctx, models.AuditTezReplied, actor, "tez", tez.ID, tez.TeamID, map[string]any{
		"parentTezId": parent.ID,
		"threadId":    parent.ThreadID,
	})
	return tez, nil
}

// persist partitions recipients, builds layers and bundles, and writes
// everything in one transaction.
func (s *Service) persist(ctx context.Context, t models.Tez, ctxItems []ContextInput, recipients []string, actor string, now time.Time) (models.Tez, error) {
	layers := buildLayers(t.ID, actor, ctxItems, now)
	part := federation.Partition(recipients, s.Host)

	var rows []models.TezRecipient
	for _, uid := range part.Local {
		if uid == actor {
			continue
		}
		rows = append(rows, models.TezRecipient{TezID: t.ID, UserID: uid, DeliveredAt: now})
	}
	deliveries, err := s.buildDeliveries(t, layers, part.Remote, now)
	if err != nil {
		return models.Tez{}, err
	}
	if err := store.SaveTez(ctx, t, layers, rows, deliveries); err != nil {
		return models.Tez{}, err
	}
	if t.ConversationID != "" {
		if err := store.TouchConversation(ctx, t.ConversationID, now.UTC().Format(store.TimeFormat)); err != nil {
			logger.Warn("conversation_touch_failed", "conversation", t.ConversationID, "error", err.Error())
		}
	}
	if len(deliveries) > 0 {
		logger.Info("tez_enqueued_remote", "tez", t.ID, "hosts", len(deliveries))
	}
	return t, nil
}

// Get returns the full tez view. Reads by anyone other than the sender
// stamp the recipient cursor and land in the journal; sender self-reads
// do neither.
func (s *Service) Get(ctx context.Context, actor, id string) (TezView, error) {
	t, err := store.GetTez(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return TezView{}, apierr.NotFound("tez")
	}
	if err != nil {
		return TezView{}, err
	}
	if err := acl.MayAccess(ctx, actor, t); err != nil {
		return TezView{}, err
	}
	layers, err := store.ListTezContext(ctx, id)
	if err != nil {
		return TezView{}, err
	}
	if actor != t.SenderUserID {
		now := time.Now().UTC().Format(store.TimeFormat)
		if err := store.MarkTezRead(ctx, id, actor, now); err != nil {
			logger.Warn("mark_read_failed", "tez", id, "user", actor, "error", err.Error())
		}
		audit.Record(ctx, models.AuditTezRead, actor, "tez", id, t.TeamID, nil)
	}
	recipients, err := store.ListTezRecipients(ctx, id)
	if err != nil {
		return TezView{}, err
	}
	if layers == nil {
		layers = []models.TezContext{}
	}
	if recipients == nil {
		recipients = []models.TezRecipient{}
	}
	return TezView{Tez: t, Context: layers, Recipients: recipients}, nil
}

// Thread returns every tez in the thread containing id, oldest first.
// One ACL check on the resolved tez suffices because thread members
// share scope by construction.
func (s *Service) Thread(ctx context.Context, actor, id string) (ThreadView, error) {
	t, err := store.GetTez(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ThreadView{}, apierr.NotFound("tez")
	}
	if err != nil {
		return ThreadView{}, err
	}
	if err := acl.MayAccess(ctx, actor, t); err != nil {
		return ThreadView{}, err
	}
	msgs, err := store.ListThread(ctx, t.ThreadID)
	if err != nil {
		return ThreadView{}, err
	}
	if msgs == nil {
		msgs = []models.Tez{}
	}
	return ThreadView{
		ThreadID:     t.ThreadID,
		RootTezID:    t.ThreadID,
		MessageCount: len(msgs),
		Messages:     msgs,
	}, nil
}

// Stream pages a team's active tez newest-first.
func (s *Service) Stream(ctx context.Context, actor, teamID string, limit int, before time.Time) ([]models.Tez, bool, error) {
	if teamID == "" {
		return nil, false, apierr.New(apierr.CodeMissingTeam, "teamId is required")
	}
	if err := acl.RequireTeamMember(ctx, teamID, actor); err != nil {
		return nil, false, err
	}
	out, hasMore, err := store.StreamTeam(ctx, teamID, s.Limits.PageSize(limit), before)
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		out = []models.Tez{}
	}
	return out, hasMore, nil
}

// Acknowledge stamps the actor's acknowledgement cursor. Only roster
// members may acknowledge.
func (s *Service) Acknowledge(ctx context.Context, actor, id string) error {
	t, err := store.GetTez(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apierr.NotFound("tez")
	}
	if err != nil {
		return err
	}
	if err := acl.MayAccess(ctx, actor, t); err != nil {
		return err
	}
	now := time.Now().UTC().Format(store.TimeFormat)
	if err := store.AckTez(ctx, id, actor, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.Forbidden()
		}
		return err
	}
	audit.Record(ctx, models.AuditTezAcknowledged, actor, "tez", id, t.TeamID, nil)
	return nil
}

// UnreadRollup is the per-scope unread summary.
type UnreadRollup struct {
	Teams         map[string]int `json:"teams"`
	Conversations map[string]int `json:"conversations"`
	Total         int            `json:"total"`
}

// Unread aggregates the actor's unread counts across teams and
// conversations.
func (s *Service) Unread(ctx context.Context, actor string) (UnreadRollup, error) {
	teams, err := store.UnreadByTeam(ctx, actor)
	if err != nil {
		return UnreadRollup{}, err
	}
	convs, err := store.UnreadByConversation(ctx, actor)
	if err != nil {
		return UnreadRollup{}, err
	}
	total := 0
	for _, n := range teams {
		total += n
	}
	for _, n := range convs {
		total += n
	}
	return UnreadRollup{Teams: teams, Conversations: convs, Total: total}, nil
}

func orDefaultType(s string) models.TezType {
	if s == "" {
		return models.TypeNote
	}
	return models.TezType(s)
}

func orDefaultUrgency(s string) models.Urgency {
	if s == "" {
		return models.UrgencyNormal
	}
	return models.Urgency(s)
}
