package models

import "time"

// AuditAction enumerates the journal entry kinds. The journal is strictly
// append-only; entries are never updated or deleted.
type AuditAction string

const (
	AuditTezShared        AuditAction = "tez.shared"
	AuditTezReplied       AuditAction = "tez.replied"
	AuditTezRead          AuditAction = "tez.read"
	AuditTezReceived      AuditAction = "tez.received"
	AuditTezAcknowledged  AuditAction = "tez.acknowledged"
	AuditTezArchived      AuditAction = "tez.archived"
	AuditTezDeleted       AuditAction = "tez.deleted"
	AuditTeamCreated      AuditAction = "team.created"
	AuditTeamMemberAdded  AuditAction = "team.member_added"
	AuditTeamMemberRemove AuditAction = "team.member_removed"
	AuditContactRegister  AuditAction = "contact.registered"
	AuditContactUpdated   AuditAction = "contact.updated"
	AuditPeerAdded        AuditAction = "peer.added"
	AuditPeerTrusted      AuditAction = "peer.trusted"
	AuditPeerBlocked      AuditAction = "peer.blocked"
	AuditPeerRemoved      AuditAction = "peer.removed"
)

// AuditEntry is one journal row.
type AuditEntry struct {
	ID          string         `json:"id"`
	TeamID      string         `json:"teamId,omitempty"`
	ActorUserID string         `json:"actorUserId"`
	Action      AuditAction    `json:"action"`
	TargetType  string         `json:"targetType"`
	TargetID    string         `json:"targetId"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}
