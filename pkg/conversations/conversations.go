// Package conversations manages DM and group envelopes. DM creation is
// idempotent over the unordered member pair; the store's unique dm_key
// index makes racing creates collapse onto one row.
package conversations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tezrelay/pkg/acl"
	"tezrelay/pkg/apierr"
	"tezrelay/pkg/messaging"
	"tezrelay/pkg/models"
	"tezrelay/pkg/store"
)

// Service wraps conversation operations around the messaging service,
// which carries the relay host and payload bounds.
type Service struct {
	Messaging *messaging.Service
}

// CreateInput is the conversation creation payload.
type CreateInput struct {
	Type      string   `json:"type"`
	MemberIDs []string `json:"memberIds"`
	Name      string   `json:"name,omitempty"`
}

// ConversationView is a conversation with its member rows.
type ConversationView struct {
	models.Conversation
	Members []models.ConversationMember `json:"members"`
}

// Create makes a DM or group. For DMs an existing conversation over the
// same pair is returned instead of a duplicate, regardless of which
// side initiates.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (ConversationView, bool, error) {
	now := time.Now().UTC()
	switch models.ConversationType(in.Type) {
	case models.ConversationDM:
		if len(in.MemberIDs) != 1 || in.MemberIDs[0] == "" || in.MemberIDs[0] == actor {
			return ConversationView{}, false, apierr.Validation("dm requires exactly one other member")
		}
		other := in.MemberIDs[0]
		if id, err := store.FindDM(ctx, actor, other); err == nil {
			return s.view(ctx, id, false)
		} else if !errors.Is(err, store.ErrNotFound) {
			return ConversationView{}, false, err
		}
		conv := models.Conversation{
			ID:        uuid.NewString(),
			Type:      models.ConversationDM,
			CreatedBy: actor,
			CreatedAt: now,
			UpdatedAt: now,
		}
		members := []models.ConversationMember{
			{ConversationID: conv.ID, UserID: actor, JoinedAt: now},
			{ConversationID: conv.ID, UserID: other, JoinedAt: now},
		}
		if err := store.CreateConversation(ctx, conv, members); err != nil {
			// A concurrent create over the same pair wins the unique
			// index; fall back to the surviving row.
			if id, ferr := store.FindDM(ctx, actor, other); ferr == nil {
				return s.view(ctx, id, false)
			}
			return ConversationView{}, false, err
		}
		return ConversationView{Conversation: conv, Members: members}, true, nil

	case models.ConversationGroup:
		if len(in.MemberIDs) == 0 {
			return ConversationView{}, false, apierr.Validation("group requires at least one member")
		}
		if in.Name == "" {
			return ConversationView{}, false, apierr.Validation("group requires a name")
		}
		conv := models.Conversation{
			ID:        uuid.NewString(),
			Type:      models.ConversationGroup,
			Name:      in.Name,
			CreatedBy: actor,
			CreatedAt: now,
			UpdatedAt: now,
		}
		seen := map[string]bool{actor: true}
		members := []models.ConversationMember{{ConversationID: conv.ID, UserID: actor, JoinedAt: now}}
		for _, id := range in.MemberIDs {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			members = append(members, models.ConversationMember{ConversationID: conv.ID, UserID: id, JoinedAt: now})
		}
		if err := store.CreateConversation(ctx, conv, members); err != nil {
			return ConversationView{}, false, err
		}
		return ConversationView{Conversation: conv, Members: members}, true, nil

	default:
		return ConversationView{}, false, apierr.Validation("type must be dm or group")
	}
}

func (s *Service) view(ctx context.Context, id string, created bool) (ConversationView, bool, error) {
	conv, err := store.GetConversation(ctx, id)
	if err != nil {
		return ConversationView{}, false, err
	}
	members, err := store.ListConversationMembers(ctx, id)
	if err != nil {
		return ConversationView{}, false, err
	}
	return ConversationView{Conversation: conv, Members: members}, created, nil
}

// List returns the actor's conversations annotated with last message
// and unread count.
func (s *Service) List(ctx context.Context, actor string) ([]models.ConversationSummary, error) {
	out, err := store.ListConversationsForUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.ConversationSummary{}
	}
	return out, nil
}

// Messages pages a conversation's tez newest-first.
func (s *Service) Messages(ctx context.Context, actor, convID string, limit int, before time.Time) ([]models.Tez, bool, error) {
	if err := acl.RequireConversationMember(ctx, convID, actor); err != nil {
		return nil, false, err
	}
	out, hasMore, err := store.ListConversationMessages(ctx, convID, s.Messaging.Limits.PageSize(limit), before)
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		out = []models.Tez{}
	}
	return out, hasMore, nil
}

// SendMessage shares a tez into the conversation addressed to every
// other member. Remote members federate exactly as in a direct share.
func (s *Service) SendMessage(ctx context.Context, actor, convID, surfaceText string, ctxItems []messaging.ContextInput) (models.Tez, error) {
	if _, err := store.GetConversation(ctx, convID); errors.Is(err, store.ErrNotFound) {
		return models.Tez{}, apierr.NotFound("conversation")
	} else if err != nil {
		return models.Tez{}, err
	}
	if err := acl.RequireConversationMember(ctx, convID, actor); err != nil {
		return models.Tez{}, err
	}
	members, err := store.ListConversationMembers(ctx, convID)
	if err != nil {
		return models.Tez{}, err
	}
	var recipients []string
	for _, m := range members {
		if m.UserID == actor {
			continue
		}
		recipients = append(recipients, m.UserID)
	}
	return s.Messaging.Share(ctx, actor, messaging.ShareInput{
		ConversationID: convID,
		SurfaceText:    surfaceText,
		Visibility:     string(models.VisibilityDM),
		Recipients:     recipients,
		Context:        ctxItems,
	})
}

// MarkRead moves the actor's read cursor to now.
func (s *Service) MarkRead(ctx context.Context, actor, convID string) error {
	if err := acl.RequireConversationMember(ctx, convID, actor); err != nil {
		return err
	}
	ts := time.Now().UTC().Format(store.TimeFormat)
	if err := store.MarkConversationRead(ctx, convID, actor, ts); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.NotFound("conversation")
		}
		return err
	}
	return nil
}
