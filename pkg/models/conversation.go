package models

import "time"

// ConversationType distinguishes two-party DMs from named groups.
type ConversationType string

const (
	ConversationDM    ConversationType = "dm"
	ConversationGroup ConversationType = "group"
)

// Conversation is a persistent envelope for DMs and groups, orthogonal to
// teams. DMs are unique over their unordered member pair; Name is empty for
// DMs and required for groups.
type Conversation struct {
	ID        string           `json:"id"`
	Type      ConversationType `json:"type"`
	Name      string           `json:"name,omitempty"`
	CreatedBy string           `json:"createdBy"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ConversationMember is a (conversation, user) membership row. LastReadAt
// is nil until the member first marks the conversation read.
type ConversationMember struct {
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty"`
}

// LastMessage is the listing annotation for a conversation's newest Tez.
type LastMessage struct {
	ID           string    `json:"id"`
	SurfaceText  string    `json:"surfaceText"`
	SenderUserID string    `json:"senderUserId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ConversationSummary is the per-member listing row: the conversation plus
// its last message and the member's unread count.
type ConversationSummary struct {
	Conversation
	Members     []ConversationMember `json:"members,omitempty"`
	LastMessage *LastMessage         `json:"lastMessage,omitempty"`
	UnreadCount int                  `json:"unreadCount"`
}
