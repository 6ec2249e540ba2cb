// Package handlers holds the HTTP endpoint implementations. Routes are
// registered in groups onto gorilla/mux routers; the router assembly
// and middleware chain live in pkg/api.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/auth"
	"tezrelay/pkg/config"
	"tezrelay/pkg/conversations"
	"tezrelay/pkg/federation"
	"tezrelay/pkg/identity"
	"tezrelay/pkg/messaging"
	"tezrelay/pkg/utils"
)

// Deps carries the wired services the handlers call into.
type Deps struct {
	Cfg       *config.Config
	Identity  *identity.Identity
	Verifier  *auth.Verifier
	Messaging *messaging.Service
	Convs     *conversations.Service
	Inbox     *federation.Inbox
	Fed       *federation.Client
}

var deps Deps

// Init installs the handler dependencies. Called once at startup before
// any route is served.
func Init(d Deps) { deps = d }

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes()))
	if err != nil {
		return apierr.Validation("unreadable request body")
	}
	return decodeRaw(body, v)
}

func decodeRaw(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return apierr.Validation("invalid json body")
	}
	return nil
}

func maxBodyBytes() int64 {
	// Leave headroom above the surface-text bound for context layers.
	return deps.Cfg.Limits.MaxTezSizeBytes() * 4
}

// pageParams parses the shared limit/before query parameters.
func pageParams(r *http.Request) (int, time.Time, error) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, time.Time{}, apierr.Validation("limit must be a non-negative integer")
		}
		limit = n
	}
	var before time.Time
	if s := q.Get("before"); s != "" {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			ts, err = time.Parse(time.RFC3339, s)
		}
		if err != nil {
			return 0, time.Time{}, apierr.Validation("before must be an RFC 3339 timestamp")
		}
		before = ts
	}
	return limit, before, nil
}

func actor(r *http.Request) string { return auth.Actor(r.Context()) }

// writeData and writeErr keep the endpoint bodies short.
func writeData(w http.ResponseWriter, status int, data, meta any) {
	utils.JSONData(w, status, data, meta)
}

func writeErr(w http.ResponseWriter, err error) {
	utils.JSONError(w, err)
}
