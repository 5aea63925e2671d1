package httpserver

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Borislavv/shared-handle/pkg/config"
	"github.com/Borislavv/shared-handle/pkg/http/server/controller"
	"github.com/Borislavv/shared-handle/pkg/http/server/middleware"
	"github.com/fasthttp/router"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

type Server interface {
	ListenAndServe()
	Serve(ln net.Listener)
}

type HTTP struct {
	ctx    context.Context
	config *config.Config
	server *fasthttp.Server
}

func New(
	ctx context.Context,
	config *config.Config,
	controllers []controller.HttpController,
	middlewares []middleware.HttpMiddleware,
) *HTTP {
	s := &HTTP{ctx: ctx, config: config}
	s.initServer(s.buildRouter(controllers), middlewares)
	return s
}

// ListenAndServe blocks until the context is canceled and the server has shut down.
func (s *HTTP) ListenAndServe() {
	port := s.config.Api.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	s.run(port, func() error { return s.server.ListenAndServe(port) })
}

// Serve is ListenAndServe over an existing listener.
func (s *HTTP) Serve(ln net.Listener) {
	s.run(ln.Addr().String(), func() error { return s.server.Serve(ln) })
}

func (s *HTTP) run(addr string, serve func() error) {
	wg := &sync.WaitGroup{}
	defer wg.Wait()

	wg.Add(1)
	go s.serve(wg, addr, serve)

	wg.Add(1)
	go s.shutdown(wg)
}

func (s *HTTP) serve(wg *sync.WaitGroup, addr string, serve func() error) {
	defer wg.Done()

	name := s.config.Api.Name

	log.Info().Msgf("[server] %v was started on %v", name, addr)
	defer log.Info().Msgf("[server] %v was stopped on %v", name, addr)

	if err := serve(); err != nil {
		log.Error().Err(err).Msgf("[server] %v failed to listen and serve %v", name, addr)
	}
}

func (s *HTTP) shutdown(wg *sync.WaitGroup) {
	defer wg.Done()

	<-s.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := s.server.ShutdownWithContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Msgf("[server] %v shutdown failed: %v", s.config.Api.Name, err.Error())
		}
	}
}

func (s *HTTP) buildRouter(controllers []controller.HttpController) *router.Router {
	r := router.New()
	for _, contr := range controllers {
		contr.AddRoute(r)
	}
	return r
}

func (s *HTTP) mergeMiddlewares(
	handler fasthttp.RequestHandler,
	middlewares []middleware.HttpMiddleware,
) fasthttp.RequestHandler {
	// last middlewares must be applied at the end
	// in this case we must start the cycle from the end of slice
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i].Middleware(handler)
	}
	return handler
}

func (s *HTTP) initServer(r *router.Router, middlewares []middleware.HttpMiddleware) {
	s.server = &fasthttp.Server{
		Handler:               s.mergeMiddlewares(r.Handler, middlewares),
		Name:                  s.config.Api.Name,
		GetOnly:               true,                   // Only GET endpoints are exposed.
		ReduceMemoryUsage:     true,                   // Low-traffic operational endpoints.
		CloseOnShutdown:       true,                   // Close keep-alive connections on graceful shutdown.
		ReadTimeout:           500 * time.Millisecond, // Mitigates slowloris.
		WriteTimeout:          5 * time.Second,        // Metrics output may be large.
		IdleTimeout:           60 * time.Second,
		NoDefaultServerHeader: true,
	}
}
