package controller

import "github.com/fasthttp/router"

// HttpController attaches its handlers to the router.
type HttpController interface {
	AddRoute(r *router.Router)
}
