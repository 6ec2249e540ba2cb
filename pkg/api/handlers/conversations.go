package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"tezrelay/pkg/conversations"
	"tezrelay/pkg/messaging"
)

// RegisterConversations registers DM and group endpoints.
func RegisterConversations(r *mux.Router) {
	r.HandleFunc("/conversations", createConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", listConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", sendConversationMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", listConversationMessages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/read", markConversationRead).Methods(http.MethodPost)
}

func createConversation(w http.ResponseWriter, r *http.Request) {
	var in conversations.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	view, created, err := deps.Convs.Create(r.Context(), actor(r), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusCreated
	if !created {
		// An existing DM over the same pair is returned, not duplicated.
		status = http.StatusOK
	}
	writeData(w, status, view, nil)
}

func listConversations(w http.ResponseWriter, r *http.Request) {
	out, err := deps.Convs.List(r.Context(), actor(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, out, nil)
}

func sendConversationMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SurfaceText string                   `json:"surfaceText"`
		Context     []messaging.ContextInput `json:"context,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	t, err := deps.Convs.SendMessage(r.Context(), actor(r), mux.Vars(r)["id"], in.SurfaceText, in.Context)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, t, nil)
}

func listConversationMessages(w http.ResponseWriter, r *http.Request) {
	limit, before, err := pageParams(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	msgs, hasMore, err := deps.Convs.Messages(r.Context(), actor(r), mux.Vars(r)["id"], limit, before)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, msgs, map[string]any{"hasMore": hasMore})
}

func markConversationRead(w http.ResponseWriter, r *http.Request) {
	if err := deps.Convs.MarkRead(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"read": true}, nil)
}
