package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestNetHTTPHandlerServesDocument(t *testing.T) {
	h := NetHTTPHandler(NewProbe("1.2.3", "relay-a.example"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var doc Probe
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.Status != "ok" || doc.Version != "1.2.3" || doc.Relay != "relay-a.example" {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestFastHTTPHandlerServesDocument(t *testing.T) {
	h := FastHTTPHandler(NewProbe("1.2.3", ""))
	var ctx fasthttp.RequestCtx
	h(&ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	var doc Probe
	if err := json.Unmarshal(ctx.Response.Body(), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.Status != "ok" || doc.Version != "1.2.3" {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Relay != "" {
		t.Fatalf("relay = %q", doc.Relay)
	}
}
