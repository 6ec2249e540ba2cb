// Package telemetry exposes request metrics over Prometheus. The
// middleware labels by method, route template and status class so
// cardinality stays bounded.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gorilla/mux"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tezrelay_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tezrelay_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	outboundDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tezrelay_outbound_deliveries_total",
		Help: "Outbound federation deliveries by outcome.",
	}, []string{"outcome"})

	inboundBundles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tezrelay_inbound_bundles_total",
		Help: "Inbound federation bundles by outcome.",
	}, []string{"outcome"})
)

// CountOutbound records one pump outcome ("sent", "failed", "retry").
func CountOutbound(outcome string) { outboundDeliveries.WithLabelValues(outcome).Inc() }

// CountInbound records one inbox outcome ("accepted", "partial",
// "rejected").
func CountInbound(outcome string) { inboundBundles.WithLabelValues(outcome).Inc() }

// Middleware records request count and latency for every route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(srw.status)).Inc()
		requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
