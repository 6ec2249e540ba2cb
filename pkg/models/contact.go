package models

import "time"

// Contact is a locally registered user. TezAddress is "<userId>@<relayHost>"
// and is unique; a user must be registered before they can receive
// federated Tez.
type Contact struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	TezAddress  string    `json:"tezAddress"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PublicProfile is the cross-user view of a contact; it omits the email.
type PublicProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	TezAddress  string `json:"tezAddress"`
	Status      string `json:"status"`
}

// Public returns the profile view of c.
func (c Contact) Public() PublicProfile {
	return PublicProfile{
		ID:          c.ID,
		DisplayName: c.DisplayName,
		AvatarURL:   c.AvatarURL,
		TezAddress:  c.TezAddress,
		Status:      c.Status,
	}
}
