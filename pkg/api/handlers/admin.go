package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/audit"
	"tezrelay/pkg/logger"
	"tezrelay/pkg/models"
	"tezrelay/pkg/store"
	"tezrelay/pkg/trust"
)

// RegisterAdmin registers operator endpoints onto the admin subrouter.
// The router wraps these in the administrative-user check.
func RegisterAdmin(r *mux.Router) {
	r.HandleFunc("/federation/servers", adminListServers).Methods(http.MethodGet)
	r.HandleFunc("/federation/servers", adminAddServer).Methods(http.MethodPost)
	r.HandleFunc("/federation/servers/{host}", adminPatchServer).Methods(http.MethodPatch)
	r.HandleFunc("/federation/servers/{host}", adminDeleteServer).Methods(http.MethodDelete)
	r.HandleFunc("/federation/outbox", adminListOutbox).Methods(http.MethodGet)
	r.HandleFunc("/audit", adminListAudit).Methods(http.MethodGet)
}

func adminListServers(w http.ResponseWriter, r *http.Request) {
	peers, err := store.ListPeers(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if peers == nil {
		peers = []models.Peer{}
	}
	writeData(w, http.StatusOK, peers, nil)
}

// adminAddServer registers a peer by host. The relay fetches the peer's
// server-info to learn its key, records the peer as trusted (adding is
// the operator's trust decision), and introduces itself back so the
// peer can verify our signatures in turn.
func adminAddServer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Host        string `json:"host"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	if in.Host == "" {
		writeErr(w, apierr.Validation("host is required"))
		return
	}
	si, err := deps.Fed.FetchServerInfo(r.Context(), in.Host)
	if err != nil {
		writeErr(w, apierr.Validation("could not fetch server-info from "+in.Host))
		return
	}
	if si.Host != in.Host {
		writeErr(w, apierr.Validation("server-info host does not match "+in.Host))
		return
	}
	mode := trust.Mode(deps.Cfg.Federation.ModeOrDefault())
	if _, err := trust.Register(r.Context(), mode, si.Host, si.PublicKey, in.DisplayName); err != nil {
		writeErr(w, err)
		return
	}
	p, err := trust.SetLevel(r.Context(), si.Host, models.TrustTrusted)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := deps.Fed.Introduce(r.Context(), si.Host, deps.Cfg.Federation.Enabled); err != nil {
		logger.Warn("peer_introduce_failed", "host", si.Host, "error", err.Error())
	}
	audit.Record(r.Context(), models.AuditPeerAdded, actor(r), "peer", si.Host, "", nil)
	writeData(w, http.StatusCreated, p, nil)
}

func adminPatchServer(w http.ResponseWriter, r *http.Request) {
	host := mux.Vars(r)["host"]
	var in struct {
		TrustLevel string `json:"trustLevel"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	p, err := trust.SetLevel(r.Context(), host, models.TrustLevel(in.TrustLevel))
	if err != nil {
		writeErr(w, err)
		return
	}
	action := models.AuditPeerTrusted
	if p.TrustLevel == models.TrustBlocked {
		action = models.AuditPeerBlocked
	}
	audit.Record(r.Context(), action, actor(r), "peer", host, "", map[string]any{"trustLevel": in.TrustLevel})
	writeData(w, http.StatusOK, p, nil)
}

func adminDeleteServer(w http.ResponseWriter, r *http.Request) {
	host := mux.Vars(r)["host"]
	if err := trust.Remove(r.Context(), host); err != nil {
		writeErr(w, err)
		return
	}
	audit.Record(r.Context(), models.AuditPeerRemoved, actor(r), "peer", host, "", nil)
	writeData(w, http.StatusOK, map[string]string{"removed": host}, nil)
}

func adminListOutbox(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			writeErr(w, apierr.Validation("limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	rows, err := store.ListDeliveries(r.Context(), status, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	if rows == nil {
		rows = []models.OutboundDelivery{}
	}
	writeData(w, http.StatusOK, rows, nil)
}

func adminListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeErr(w, apierr.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	rows, err := audit.List(r.Context(), q.Get("action"), q.Get("teamId"), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	if rows == nil {
		rows = []models.AuditEntry{}
	}
	writeData(w, http.StatusOK, rows, nil)
}
