package server

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/shared-handle/internal/stress/api"
	"github.com/Borislavv/shared-handle/pkg/config"
	httpserver "github.com/Borislavv/shared-handle/pkg/http/server"
	"github.com/Borislavv/shared-handle/pkg/http/server/controller"
	"github.com/Borislavv/shared-handle/pkg/http/server/middleware"
	"github.com/Borislavv/shared-handle/pkg/k8s/probe/liveness"
	metricscontroller "github.com/Borislavv/shared-handle/pkg/prometheus/metrics/controller"
)

// Http exposes methods for starting and liveness probing.
type Http interface {
	Start()
	IsAlive() bool
}

// HttpServer serves the operational endpoints of a stress run.
type HttpServer struct {
	ctx           context.Context
	cfg           *config.Config
	probe         liveness.Prober
	stats         api.StatsProvider
	server        httpserver.Server
	isServerAlive atomic.Bool
}

func New(ctx context.Context, cfg *config.Config, probe liveness.Prober, stats api.StatsProvider) *HttpServer {
	srv := &HttpServer{
		ctx:   ctx,
		cfg:   cfg,
		probe: probe,
		stats: stats,
	}
	srv.server = httpserver.New(ctx, cfg, srv.controllers(), srv.middlewares())
	return srv
}

// Start blocks until the server has stopped.
func (s *HttpServer) Start() {
	wg := &sync.WaitGroup{}
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer func() {
			s.isServerAlive.Store(false)
			wg.Done()
		}()
		s.isServerAlive.Store(true)
		s.server.ListenAndServe()
	}()
}

func (s *HttpServer) IsAlive() bool {
	return s.isServerAlive.Load()
}

func (s *HttpServer) controllers() []controller.HttpController {
	return []controller.HttpController{
		liveness.NewController(s.probe),          // healthcheck probe endpoint
		metricscontroller.NewPrometheusMetrics(), // metrics endpoint
		api.NewStatsController(s.stats),          // stress progress and tracker stats
	}
}

// middlewares are executed in order.
func (s *HttpServer) middlewares() []middleware.HttpMiddleware {
	return []middleware.HttpMiddleware{
		/** exec 1st. */ middleware.NewServerNameMiddleware(s.cfg),
		/** exec 2nd. */ middleware.NewRequestMetricsMiddleware(),
	}
}
