package httpx

import "github.com/valyala/fasthttp"

// FastHTTPHandler serves the probe document on a fasthttp server.
func FastHTTPHandler(p Probe) fasthttp.RequestHandler {
	body := p.body()
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusOK)
		_, _ = ctx.Write(body)
	}
}
