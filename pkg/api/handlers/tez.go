package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"tezrelay/pkg/messaging"
)

// RegisterTez registers the messaging endpoints.
func RegisterTez(r *mux.Router) {
	r.HandleFunc("/tez/share", shareTez).Methods(http.MethodPost)
	r.HandleFunc("/tez/stream", streamTez).Methods(http.MethodGet)
	r.HandleFunc("/tez/{id}/reply", replyTez).Methods(http.MethodPost)
	r.HandleFunc("/tez/{id}/thread", getThread).Methods(http.MethodGet)
	r.HandleFunc("/tez/{id}/ack", ackTez).Methods(http.MethodPost)
	r.HandleFunc("/tez/{id}", getTez).Methods(http.MethodGet)
	r.HandleFunc("/unread", getUnread).Methods(http.MethodGet)
}

func shareTez(w http.ResponseWriter, r *http.Request) {
	var in messaging.ShareInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	t, err := deps.Messaging.Share(r.Context(), actor(r), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, t, nil)
}

func replyTez(w http.ResponseWriter, r *http.Request) {
	var in messaging.ReplyInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	t, err := deps.Messaging.Reply(r.Context(), actor(r), mux.Vars(r)["id"], in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, t, nil)
}

func getTez(w http.ResponseWriter, r *http.Request) {
	view, err := deps.Messaging.Get(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, view, nil)
}

func getThread(w http.ResponseWriter, r *http.Request) {
	view, err := deps.Messaging.Thread(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, view, nil)
}

func streamTez(w http.ResponseWriter, r *http.Request) {
	limit, before, err := pageParams(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	msgs, hasMore, err := deps.Messaging.Stream(r.Context(), actor(r), r.URL.Query().Get("teamId"), limit, before)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, msgs, map[string]any{"hasMore": hasMore})
}

func ackTez(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := deps.Messaging.Acknowledge(r.Context(), actor(r), id); err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"acknowledged": id}, nil)
}

func getUnread(w http.ResponseWriter, r *http.Request) {
	rollup, err := deps.Messaging.Unread(r.Context(), actor(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, rollup, nil)
}
