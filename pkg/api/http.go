// Package api assembles the HTTP surface: the user routes behind
// bearer auth, the federation routes behind HTTP signatures, the admin
// routes behind the administrative user set, and the operational
// endpoints.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"tezrelay/pkg/api/handlers"
	"tezrelay/pkg/store"
	"tezrelay/pkg/telemetry"
)

// NewRouter builds the full route tree. Init must have been called on
// the handlers package first.
func NewRouter(d handlers.Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(telemetry.Middleware)

	// Probes and operational endpoints are unauthenticated.
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))

	// Server-to-server routes authenticate with HTTP signatures inside
	// the handlers.
	handlers.RegisterFederation(r)

	// User routes require a bearer token.
	user := r.NewRoute().Subrouter()
	user.Use(d.Verifier.RequireUser)
	handlers.RegisterTeams(user)
	handlers.RegisterContacts(user)
	handlers.RegisterConversations(user)
	handlers.RegisterTez(user)

	// Operator routes additionally require the administrative user set.
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(d.Verifier.RequireAdmin)
	handlers.RegisterAdmin(admin)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readyHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
