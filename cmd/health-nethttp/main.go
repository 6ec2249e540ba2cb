// Sidecar health probe on net/http. Deployments that cannot reach the
// relay's own /healthz (for example while the store is compacting) can
// point their checks here instead.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"tezrelay/pkg/httpx"
)

func main() {
	addr := flag.String("addr", ":8082", "listen address for the net/http health probe")
	ver := flag.String("version", "dev", "version string to return")
	relay := flag.String("relay", "", "relay host this probe fronts")
	flag.Parse()

	h := httpx.NetHTTPHandler(httpx.NewProbe(*ver, *relay))
	mux := http.NewServeMux()
	mux.Handle("/health", h)
	mux.Handle("/healthz", h)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	fmt.Printf("net/http health probe listening on %s\n", *addr)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Printf("net/http server exit: %v\n", err)
	}
}
