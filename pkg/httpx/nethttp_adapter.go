package httpx

import "net/http"

// NetHTTPHandler serves the probe document on a net/http server.
func NetHTTPHandler(p Probe) http.Handler {
	body := p.body()
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}
