// Sidecar health probe on fasthttp. Same contract as the net/http
// variant; used where probe traffic is heavy enough for the allocation
// profile to matter.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"tezrelay/pkg/httpx"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address for the fasthttp health probe")
	ver := flag.String("version", "dev", "version string to return")
	relay := flag.String("relay", "", "relay host this probe fronts")
	flag.Parse()

	h := httpx.FastHTTPHandler(httpx.NewProbe(*ver, *relay))
	handler := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health", "/healthz":
			h(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	srv := &fasthttp.Server{
		Handler:            handler,
		Name:               "tezrelay-health",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	fmt.Printf("fasthttp health probe listening on %s\n", *addr)
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("fasthttp server exit: %v\n", err)
	}
}
