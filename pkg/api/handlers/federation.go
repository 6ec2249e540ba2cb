package handlers

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/federation"
	"tezrelay/pkg/telemetry"
	"tezrelay/pkg/trust"
)

// RegisterFederation registers the server-to-server endpoints. These
// routes carry HTTP signatures, not bearer tokens, so they sit outside
// the user auth middleware.
func RegisterFederation(r *mux.Router) {
	r.HandleFunc("/federation/inbox", federationInbox).Methods(http.MethodPost)
	r.HandleFunc("/federation/server-info", federationServerInfo).Methods(http.MethodGet)
	r.HandleFunc("/federation/verify", federationVerify).Methods(http.MethodPost)
}

func federationInbox(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes()))
	if err != nil {
		writeErr(w, apierr.Validation("unreadable request body"))
		return
	}
	res, err := deps.Inbox.Admit(r.Context(), r, body)
	if err != nil {
		telemetry.CountInbound("rejected")
		writeErr(w, err)
		return
	}
	if res.StatusOf() == http.StatusMultiStatus {
		telemetry.CountInbound("partial")
	} else {
		telemetry.CountInbound("accepted")
	}
	writeData(w, res.StatusOf(), res, nil)
}

func federationServerInfo(w http.ResponseWriter, r *http.Request) {
	info := federation.SelfInfo(deps.Identity, deps.Cfg.Federation.Enabled)
	writeData(w, http.StatusOK, info, nil)
}

// federationVerify registers the calling relay from its
// self-description. The admission mode decides the initial trust level.
func federationVerify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes()))
	if err != nil {
		writeErr(w, apierr.Validation("unreadable request body"))
		return
	}
	var in struct {
		Host        string `json:"host"`
		PublicKey   string `json:"public_key"`
		DisplayName string `json:"display_name,omitempty"`
	}
	if derr := decodeRaw(body, &in); derr != nil {
		writeErr(w, derr)
		return
	}
	mode := trust.Mode(deps.Cfg.Federation.ModeOrDefault())
	p, err := trust.Register(r.Context(), mode, in.Host, in.PublicKey, in.DisplayName)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": string(p.TrustLevel)}, nil)
}
