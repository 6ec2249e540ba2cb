package models

import "time"

// TrustLevel is the admission state of a peer relay. Blocked always wins
// over the other states for inbound delivery.
type TrustLevel string

const (
	TrustPending TrustLevel = "pending"
	TrustTrusted TrustLevel = "trusted"
	TrustBlocked TrustLevel = "blocked"
)

// Peer is another relay instance, identified by host and by the first 16
// hex characters of sha256 over its public key (the signature keyId).
type Peer struct {
	Host        string     `json:"host"`
	ServerID    string     `json:"serverId"`
	PublicKey   string     `json:"publicKey"`
	DisplayName string     `json:"displayName,omitempty"`
	TrustLevel  TrustLevel `json:"trustLevel"`
	FirstSeenAt time.Time  `json:"firstSeenAt"`
}

// DeliveryStatus is the outbound queue state machine.
type DeliveryStatus string

const (
	DeliveryQueued   DeliveryStatus = "queued"
	DeliveryInFlight DeliveryStatus = "in_flight"
	DeliverySent     DeliveryStatus = "sent"
	DeliveryFailed   DeliveryStatus = "failed"
)

// OutboundDelivery is one queued bundle for one target host. Bundle holds
// the canonical JSON exactly as it will be POSTed.
type OutboundDelivery struct {
	ID            string         `json:"id"`
	TargetHost    string         `json:"targetHost"`
	Bundle        string         `json:"bundle"`
	Status        DeliveryStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	NextAttemptAt time.Time      `json:"nextAttemptAt"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// ValidTrustLevel reports whether s is an enumerated trust level.
func ValidTrustLevel(s string) bool {
	switch TrustLevel(s) {
	case TrustPending, TrustTrusted, TrustBlocked:
		return true
	}
	return false
}
