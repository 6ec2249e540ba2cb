package models

import "time"

// TezType classifies the intent of a message.
type TezType string

const (
	TypeNote     TezType = "note"
	TypeDecision TezType = "decision"
	TypeHandoff  TezType = "handoff"
	TypeQuestion TezType = "question"
	TypeUpdate   TezType = "update"
)

// Urgency orders how soon a recipient should look at a Tez.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyNormal   Urgency = "normal"
	UrgencyLow      Urgency = "low"
	UrgencyFYI      Urgency = "fyi"
)

// Visibility names the scope a Tez is readable in.
type Visibility string

const (
	VisibilityTeam    Visibility = "team"
	VisibilityDM      Visibility = "dm"
	VisibilityPrivate Visibility = "private"
)

// TezStatus is the lifecycle state of a Tez. Archived and deleted are
// reserved: the store accepts them but no HTTP endpoint sets them yet.
type TezStatus string

const (
	StatusActive   TezStatus = "active"
	StatusArchived TezStatus = "archived"
	StatusDeleted  TezStatus = "deleted"
)

// Tez is the unit of delivery: a short surface payload plus its routing
// scope. Context layers and recipients are stored alongside, keyed by ID.
// At most one of TeamID/ConversationID is set; with neither, the Tez is
// visible only to its sender.
type Tez struct {
	ID              string     `json:"id"`
	TeamID          string     `json:"teamId,omitempty"`
	ConversationID  string     `json:"conversationId,omitempty"`
	ThreadID        string     `json:"threadId"`
	ParentTezID     string     `json:"parentTezId,omitempty"`
	SurfaceText     string     `json:"surfaceText"`
	Type            TezType    `json:"type"`
	Urgency         Urgency    `json:"urgency"`
	ActionRequested string     `json:"actionRequested,omitempty"`
	SenderUserID    string     `json:"senderUserId"`
	Visibility      Visibility `json:"visibility"`
	Status          TezStatus  `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// ContextLayer is the kind of a context item travelling with a Tez.
type ContextLayer string

const (
	LayerBackground   ContextLayer = "background"
	LayerFact         ContextLayer = "fact"
	LayerArtifact     ContextLayer = "artifact"
	LayerRelationship ContextLayer = "relationship"
	LayerConstraint   ContextLayer = "constraint"
	LayerHint         ContextLayer = "hint"
)

// ContextSource records how a context item came to be known.
type ContextSource string

const (
	SourceStated   ContextSource = "stated"
	SourceInferred ContextSource = "inferred"
	SourceVerified ContextSource = "verified"
)

// SystemUser is the CreatedBy sentinel for context rows written by the
// relay itself (for example during federated ingestion).
const SystemUser = "system"

// TezContext is one context layer attached to a Tez. Confidence is only
// meaningful for fact layers and ranges 0..100.
type TezContext struct {
	ID          string        `json:"id"`
	TezID       string        `json:"tezId"`
	Layer       ContextLayer  `json:"layer"`
	Content     string        `json:"content"`
	MimeType    string        `json:"mimeType,omitempty"`
	Confidence  *int          `json:"confidence,omitempty"`
	Source      ContextSource `json:"source,omitempty"`
	DerivedFrom string        `json:"derivedFrom,omitempty"`
	CreatedBy   string        `json:"createdBy"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// TezRecipient is the per-user delivery cursor for a Tez.
type TezRecipient struct {
	TezID          string     `json:"tezId"`
	UserID         string     `json:"userId"`
	DeliveredAt    time.Time  `json:"deliveredAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

// ValidTezType reports whether s is one of the enumerated tez types.
func ValidTezType(s string) bool {
	switch TezType(s) {
	case TypeNote, TypeDecision, TypeHandoff, TypeQuestion, TypeUpdate:
		return true
	}
	return false
}

// ValidUrgency reports whether s is one of the enumerated urgencies.
func ValidUrgency(s string) bool {
	switch Urgency(s) {
	case UrgencyCritical, UrgencyHigh, UrgencyNormal, UrgencyLow, UrgencyFYI:
		return true
	}
	return false
}

// ValidLayer reports whether s is one of the enumerated context layers.
func ValidLayer(s string) bool {
	switch ContextLayer(s) {
	case LayerBackground, LayerFact, LayerArtifact, LayerRelationship, LayerConstraint, LayerHint:
		return true
	}
	return false
}

// ValidContextSource reports whether s is an enumerated context source.
func ValidContextSource(s string) bool {
	switch ContextSource(s) {
	case SourceStated, SourceInferred, SourceVerified:
		return true
	}
	return false
}
