// Package trust maintains the peer registry and decides whether an
// inbound relay may deliver. Peer rows live in the store; a short TTL
// cache sits in front of the keyId lookup because every signed inbound
// request resolves its sender.
package trust

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/identity"
	"tezrelay/pkg/logger"
	"tezrelay/pkg/models"
	"tezrelay/pkg/store"
)

// Mode is the admission policy for previously unseen peers.
type Mode string

const (
	// ModeAllowlist parks new peers in pending until an operator trusts
	// them.
	ModeAllowlist Mode = "allowlist"
	// ModeOpen trusts new peers on first contact.
	ModeOpen Mode = "open"
)

var peerCache = gocache.New(30*time.Second, time.Minute)

// InvalidateCache drops the cached entry for a server id. Trust
// transitions call this so a block takes effect immediately.
func InvalidateCache(serverID string) { peerCache.Delete(serverID) }

// ResolvePeer returns the peer for a signature keyId, consulting the
// cache first. Unknown ids map to UNKNOWN_PEER.
func ResolvePeer(ctx context.Context, serverID string) (models.Peer, error) {
	if v, ok := peerCache.Get(serverID); ok {
		return v.(models.Peer), nil
	}
	p, err := store.GetPeerByServerID(ctx, serverID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Peer{}, apierr.New(apierr.CodeUnknownPeer, "unknown signature keyId")
	}
	if err != nil {
		return models.Peer{}, err
	}
	peerCache.SetDefault(serverID, p)
	return p, nil
}

// PublicKeyLookup adapts ResolvePeer to the signature verifier.
func PublicKeyLookup(ctx context.Context, keyID string) (ed25519.PublicKey, error) {
	p, err := ResolvePeer(ctx, keyID)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(p.PublicKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, apierr.New(apierr.CodeUnknownPeer, "peer public key is unusable")
	}
	return ed25519.PublicKey(raw), nil
}

// Admit decides whether a resolved peer may deliver inbound. Blocked
// always denies, regardless of mode.
func Admit(p models.Peer) error {
	switch p.TrustLevel {
	case models.TrustBlocked:
		return apierr.New(apierr.CodeServerBlocked, "server is blocked")
	case models.TrustTrusted:
		return nil
	default:
		return apierr.New(apierr.CodeServerNotTrusted, "server is not trusted")
	}
}

// Register inserts or refreshes a peer from its self-description. A new
// peer's initial trust level follows the admission mode; an existing
// peer keeps its level. The server id is derived from the supplied key,
// never taken from the peer's claim.
func Register(ctx context.Context, mode Mode, host, publicKeyB64, displayName string) (models.Peer, error) {
	if host == "" || publicKeyB64 == "" {
		return models.Peer{}, apierr.Validation("host and publicKey are required")
	}
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return models.Peer{}, apierr.Validation("publicKey is not a valid ed25519 key")
	}
	level := models.TrustPending
	if mode == ModeOpen {
		level = models.TrustTrusted
	}
	p := models.Peer{
		Host:        host,
		ServerID:    identity.ServerIDFromPublicKey(publicKeyB64),
		PublicKey:   publicKeyB64,
		DisplayName: displayName,
		TrustLevel:  level,
		FirstSeenAt: time.Now().UTC(),
	}
	if err := store.UpsertPeer(ctx, p); err != nil {
		return models.Peer{}, err
	}
	// The upsert preserves an existing row's trust level, so re-read.
	saved, err := store.GetPeer(ctx, host)
	if err != nil {
		return models.Peer{}, err
	}
	InvalidateCache(saved.ServerID)
	logger.Info("peer_registered", "host", saved.Host, "server_id", saved.ServerID, "trust", string(saved.TrustLevel))
	return saved, nil
}

// SetLevel applies a trust transition for host. Allowed transitions are
// pending to trusted or blocked, trusted to blocked, and blocked to
// trusted as an explicit unblock.
func SetLevel(ctx context.Context, host string, level models.TrustLevel) (models.Peer, error) {
	if !models.ValidTrustLevel(string(level)) {
		return models.Peer{}, apierr.Validation("invalid trust level")
	}
	p, err := store.GetPeer(ctx, host)
	if errors.Is(err, store.ErrNotFound) {
		return models.Peer{}, apierr.NotFound("peer")
	}
	if err != nil {
		return models.Peer{}, err
	}
	if level == models.TrustPending && p.TrustLevel != models.TrustPending {
		return models.Peer{}, apierr.Validation("cannot demote a peer to pending")
	}
	if err := store.SetPeerTrust(ctx, host, level); err != nil {
		return models.Peer{}, err
	}
	p.TrustLevel = level
	InvalidateCache(p.ServerID)
	logger.Info("peer_trust_changed", "host", host, "trust", string(level))
	return p, nil
}

// Remove deletes a peer registration entirely.
func Remove(ctx context.Context, host string) error {
	p, err := store.GetPeer(ctx, host)
	if errors.Is(err, store.ErrNotFound) {
		return apierr.NotFound("peer")
	}
	if err != nil {
		return err
	}
	if err := store.DeletePeer(ctx, host); err != nil {
		return err
	}
	InvalidateCache(p.ServerID)
	return nil
}
