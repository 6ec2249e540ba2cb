// Package identity manages this relay's long-lived Ed25519 keypair. The
// keypair is generated on first start, persisted under the data directory
// and loaded unchanged on every later start. The server id, the keyId
// peers use to look us up, is the first 16 hex characters of sha256 over
// the base64-encoded public key, exactly as peers compute it from our
// published key.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Identity is the relay's signing identity. Host comes from configuration
// and is immutable at runtime.
type Identity struct {
	Host       string
	ServerID   string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// PublicKeyBase64 returns the public key in the form it is published to
// peers.
func (id *Identity) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(id.PublicKey)
}

// Sign signs msg with the relay's private key.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.PrivateKey, msg)
}

// ServerIDFromPublicKey derives the 16-hex server id from a base64-encoded
// public key.
func ServerIDFromPublicKey(publicKeyB64 string) string {
	sum := sha256.Sum256([]byte(publicKeyB64))
	return hex.EncodeToString(sum[:])[:16]
}

// LoadOrCreate loads the keypair from <dir>/identity, generating and
// persisting a fresh one when none exists.
func LoadOrCreate(dir, host string) (*Identity, error) {
	if host == "" {
		return nil, fmt.Errorf("relay host not configured")
	}
	keyDir := filepath.Join(dir, "identity")
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create identity dir: %w", err)
	}
	privPath := filepath.Join(keyDir, "server.key")
	pubPath := filepath.Join(keyDir, "server.pub")

	if b, err := os.ReadFile(privPath); err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(b)))
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("corrupt private key file %s", privPath)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		pub := priv.Public().(ed25519.PublicKey)
		id := &Identity{Host: host, PublicKey: pub, PrivateKey: priv}
		id.ServerID = ServerIDFromPublicKey(id.PublicKeyBase64())
		return id, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(priv.Seed())), 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist private key: %w", err)
	}
	id := &Identity{Host: host, PublicKey: pub, PrivateKey: priv}
	if err := os.WriteFile(pubPath, []byte(id.PublicKeyBase64()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to persist public key: %w", err)
	}
	id.ServerID = ServerIDFromPublicKey(id.PublicKeyBase64())
	return id, nil
}

var (
	currentMu sync.RWMutex
	current   *Identity
)

// SetCurrent installs the process-wide identity. Production code calls
// this once during startup and never again; components receive the
// identity as an explicit dependency and only fall back to Current for
// convenience.
func SetCurrent(id *Identity) {
	currentMu.Lock()
	defer currentMu.Unlock()
	current = id
}

// Current returns the process-wide identity, or nil before startup.
func Current() *Identity {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}
