// Package httpx renders the sidecar probe document for both HTTP
// stacks the probe binaries ship with. The document is rendered once
// at startup and probe traffic serves the cached bytes.
package httpx

import "encoding/json"

// Probe is the sidecar's answer to liveness checks.
type Probe struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Relay   string `json:"relay,omitempty"`
}

// NewProbe returns the healthy document for a relay deployment.
func NewProbe(version, relayHost string) Probe {
	return Probe{Status: "ok", Version: version, Relay: relayHost}
}

func (p Probe) body() []byte {
	b, _ := json.Marshal(p)
	return b
}
