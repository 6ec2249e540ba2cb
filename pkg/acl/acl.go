// Package acl holds the single access predicate for Tez visibility.
// Every read path funnels through MayAccess so the admission order is
// identical everywhere: sender first, then team membership, then
// conversation membership, then roster membership, then deny.
package acl

import (
	"context"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/models"
	"tezrelay/pkg/store"
)

// MayAccess reports whether actor may observe t. The error is nil on
// admit, FORBIDDEN on deny, or a store failure.
func MayAccess(ctx context.Context, actor string, t models.Tez) error {
	if actor == t.SenderUserID {
		return nil
	}
	if t.TeamID != "" {
		ok, err := store.IsTeamMember(ctx, t.TeamID, actor)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	if t.ConversationID != "" {
		ok, err := store.IsConversationMember(ctx, t.ConversationID, actor)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	// Direct roster membership covers federated deliveries, which carry
	// neither a local team nor a conversation.
	ok, err := store.IsTezRecipient(ctx, t.ID, actor)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return apierr.Forbidden()
}

// RequireTeamMember admits team-scoped operations.
func RequireTeamMember(ctx context.Context, teamID, actor string) error {
	ok, err := store.IsTeamMember(ctx, teamID, actor)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Forbidden()
	}
	return nil
}

// RequireTeamAdmin admits administrative team operations such as roster
// changes.
func RequireTeamAdmin(ctx context.Context, teamID, actor string) error {
	m, err := store.GetTeamMember(ctx, teamID, actor)
	if err == store.ErrNotFound {
		return apierr.Forbidden()
	}
	if err != nil {
		return err
	}
	if m.Role != models.RoleAdmin {
		return apierr.Forbidden()
	}
	return nil
}

// RequireConversationMember admits conversation-scoped operations.
func RequireConversationMember(ctx context.Context, convID, actor string) error {
	ok, err := store.IsConversationMember(ctx, convID, actor)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Forbidden()
	}
	return nil
}
