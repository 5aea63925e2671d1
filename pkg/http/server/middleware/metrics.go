package middleware

import (
	"github.com/Borislavv/shared-handle/pkg/prometheus/metrics"
	"github.com/valyala/fasthttp"
)

type RequestMetricsMiddleware struct{}

func NewRequestMetricsMiddleware() RequestMetricsMiddleware {
	return RequestMetricsMiddleware{}
}

func (RequestMetricsMiddleware) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		next(ctx)
		metrics.IncRequest(string(ctx.Path()), ctx.Response.StatusCode())
	}
}
