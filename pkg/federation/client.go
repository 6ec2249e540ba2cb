package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"tezrelay/pkg/bundle"
	"tezrelay/pkg/identity"
	"tezrelay/pkg/logger"
	"tezrelay/pkg/sigv"
)

// ServerInfo is a relay's published self-description.
type ServerInfo struct {
	Host            string `json:"host"`
	ServerID        string `json:"server_id"`
	PublicKey       string `json:"public_key"`
	ProtocolVersion string `json:"protocol_version"`
	Federation      struct {
		Enabled bool   `json:"enabled"`
		Inbox   string `json:"inbox"`
	} `json:"federation"`
}

// SelfInfo renders our own server-info document.
func SelfInfo(id *identity.Identity, enabled bool) ServerInfo {
	si := ServerInfo{
		Host:            id.Host,
		ServerID:        id.ServerID,
		PublicKey:       id.PublicKeyBase64(),
		ProtocolVersion: bundle.ProtocolVersion,
	}
	si.Federation.Enabled = enabled
	si.Federation.Inbox = "/federation/inbox"
	return si
}

// Client performs outbound federation HTTP. Connect and request
// timeouts default to 5s and 30s.
type Client struct {
	Identity *identity.Identity
	HTTP     *http.Client
}

// NewClient builds a client with the given timeouts.
func NewClient(id *identity.Identity, connectTimeout, requestTimeout time.Duration) *Client {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Client{
		Identity: id,
		HTTP: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
				MaxIdleConnsPerHost: 4,
			},
		},
	}
}

// DeliverBundle POSTs a sealed bundle to the peer's inbox with a signed
// request and returns the peer's HTTP status.
func (c *Client) DeliverBundle(ctx context.Context, host string, rawBundle []byte) (int, error) {
	url := "https://" + host + "/federation/inbox"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(rawBundle))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	sigv.Sign(c.Identity, req, rawBundle, time.Now())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	return resp.StatusCode, nil
}

// FetchServerInfo retrieves a peer's self-description.
func (c *Client) FetchServerInfo(ctx context.Context, host string) (ServerInfo, error) {
	url := "https://" + host + "/federation/server-info"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ServerInfo{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return ServerInfo{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return ServerInfo{}, fmt.Errorf("server-info from %s returned %d", host, resp.StatusCode)
	}
	var si ServerInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&si); err != nil {
		return ServerInfo{}, fmt.Errorf("malformed server-info from %s: %w", host, err)
	}
	return si, nil
}

// Introduce sends our self-description to a peer's verify endpoint so
// the peer registers us for future inbound lookups.
func (c *Client) Introduce(ctx context.Context, host string, enabled bool) error {
	body, err := json.Marshal(SelfInfo(c.Identity, enabled))
	if err != nil {
		return err
	}
	url := "https://" + host + "/federation/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	sigv.Sign(c.Identity, req, body, time.Now())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verify at %s returned %d", host, resp.StatusCode)
	}
	logger.Info("peer_introduced", "host", host)
	return nil
}
