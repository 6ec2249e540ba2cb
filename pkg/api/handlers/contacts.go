package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/audit"
	"tezrelay/pkg/models"
	"tezrelay/pkg/store"
)

// RegisterContacts registers the contact directory endpoints.
func RegisterContacts(r *mux.Router) {
	r.HandleFunc("/contacts/register", registerContact).Methods(http.MethodPost)
	r.HandleFunc("/contacts/me", getOwnContact).Methods(http.MethodGet)
	r.HandleFunc("/contacts/search", searchContacts).Methods(http.MethodGet)
	r.HandleFunc("/contacts/{userId}", getContactProfile).Methods(http.MethodGet)
}

// registerContact creates or refreshes the actor's directory entry.
// Re-registration updates the display fields instead of duplicating the
// row.
func registerContact(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DisplayName string `json:"displayName"`
		Email       string `json:"email,omitempty"`
		AvatarURL   string `json:"avatarUrl,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	if in.DisplayName == "" {
		writeErr(w, apierr.Validation("displayName is required"))
		return
	}

	uid := actor(r)
	_, gerr := store.GetContact(r.Context(), uid)
	existed := gerr == nil
	if gerr != nil && !errors.Is(gerr, store.ErrNotFound) {
		writeErr(w, gerr)
		return
	}

	now := time.Now().UTC()
	c := models.Contact{
		ID:          uid,
		DisplayName: in.DisplayName,
		Email:       in.Email,
		AvatarURL:   in.AvatarURL,
		TezAddress:  uid + "@" + deps.Identity.Host,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.UpsertContact(r.Context(), c); err != nil {
		writeErr(w, err)
		return
	}
	action := models.AuditContactRegister
	if existed {
		action = models.AuditContactUpdated
	}
	audit.Record(r.Context(), action, uid, "contact", uid, "", nil)
	writeData(w, http.StatusCreated, c, nil)
}

func getOwnContact(w http.ResponseWriter, r *http.Request) {
	c, err := store.GetContact(r.Context(), actor(r))
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, apierr.NotFound("contact"))
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, c, nil)
}

func searchContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if len(q) < 2 {
		writeErr(w, apierr.Validation("q must be at least 2 characters"))
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeErr(w, apierr.Validation("limit must be a positive integer"))
			return
		}
		limit = deps.Cfg.Limits.PageSize(n)
	}
	contacts, err := store.SearchContacts(r.Context(), q, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := []models.PublicProfile{}
	for _, c := range contacts {
		out = append(out, c.Public())
	}
	writeData(w, http.StatusOK, out, nil)
}

// getContactProfile returns the public view, which omits the email.
func getContactProfile(w http.ResponseWriter, r *http.Request) {
	c, err := store.GetContact(r.Context(), mux.Vars(r)["userId"])
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, apierr.NotFound("contact"))
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, c.Public(), nil)
}
