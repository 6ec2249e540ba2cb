package app

import (
	"net/http"

	"tezrelay/pkg/api"
	"tezrelay/pkg/banner"
	"tezrelay/pkg/security"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, a.id.ServerID, verStr)
}

// startHTTP builds the handler chain, starts the HTTP server in a
// goroutine and returns a channel that will contain any server error.
func (a *App) startHTTP() <-chan error {
	wrapped := security.Middleware(a.eff.Config.Security)(api.NewRouter(a.deps))

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
