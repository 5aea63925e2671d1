// Package stress runs many goroutines that share one payload through handles
// and checks that it is destroyed exactly once when the last share goes away.
package stress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Borislavv/shared-handle/internal/stress/api"
	"github.com/Borislavv/shared-handle/internal/stress/server"
	"github.com/Borislavv/shared-handle/pkg/cache"
	"github.com/Borislavv/shared-handle/pkg/config"
	"github.com/Borislavv/shared-handle/pkg/k8s/probe/liveness"
	"github.com/Borislavv/shared-handle/pkg/registry"
	"github.com/Borislavv/shared-handle/pkg/shared"
	"github.com/Borislavv/shared-handle/pkg/shutdown"
	"github.com/rs/zerolog/log"
)

const (
	rootName    = "root"
	payloadSize = 64
)

// Report is the outcome of one run.
type Report struct {
	Workers    int
	Iterations int
	Ops        int64
	Reads      int64
	UseCount   int64 // root's share count once every worker has joined
	Destroyed  int32
	Elapsed    time.Duration
	Tracker    shared.Stats
}

// App owns a stress run together with the containers and the server around it.
type App struct {
	cfg      *config.Config
	ctx      context.Context
	cancel   context.CancelFunc
	probe    liveness.Prober
	tracker  *shared.Tracker
	registry *registry.Registry[Payload]
	cache    *cache.Cache[Payload]
	server   server.Http

	ops      atomic.Int64
	running  atomic.Bool
	finished atomic.Bool
	mu       sync.RWMutex
	err      error
	doneCh   chan struct{}
}

// NewApp builds the tracker, the optional registry and cache, and the HTTP server if enabled.
func NewApp(ctx context.Context, cfg *config.Config, probe liveness.Prober) (*App, error) {
	ctx, cancel := context.WithCancel(ctx)

	app := &App{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		probe:   probe,
		tracker: shared.NewTracker(cfg.Tracker.Name, cfg.Tracker.MaxLive),
		doneCh:  make(chan struct{}),
	}

	if cfg.Stress.UseRegistry {
		reg, err := registry.New[Payload](cfg.Registry.Shards)
		if err != nil {
			cancel()
			return nil, err
		}
		app.registry = reg
	}

	if cfg.Stress.UseCache {
		c, err := cache.New[Payload](cfg.Cache)
		if err != nil {
			cancel()
			return nil, err
		}
		app.cache = c
	}

	if cfg.Api.Enabled {
		app.server = server.New(ctx, cfg, probe, app)
	}

	return app, nil
}

// Start runs the stress, keeps the server up until the context is canceled
// and calls gc.Done when everything has stopped.
func (a *App) Start(gc shutdown.Gracefuller) {
	defer func() {
		a.stop()
		gc.Done()
	}()

	log.Info().Msg("[app] starting stress")

	waitCh := make(chan struct{})
	go func() {
		defer close(waitCh)
		a.probe.Watch(a)
		if a.server != nil {
			a.server.Start() // blocks until the context is canceled
		}
	}()

	report, err := a.Run(a.ctx)
	a.finish(report, err)

	<-waitCh
}

// Done is closed once the run has finished, successfully or not.
func (a *App) Done() <-chan struct{} {
	return a.doneCh
}

// Err returns the outcome of the finished run.
func (a *App) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Tracker is the tracker every handle of the run is accounted in.
func (a *App) Tracker() *shared.Tracker {
	return a.tracker
}

// Run shares one payload among the configured workers and verifies that the
// payload outlives every worker and is destroyed exactly once afterwards.
func (a *App) Run(ctx context.Context) (*Report, error) {
	a.running.Store(true)
	defer a.running.Store(false)

	payload := NewPayload(rootName, payloadSize)
	root, err := shared.NewIn(a.tracker, payload)
	if err != nil {
		return nil, fmt.Errorf("allocate root handle: %w", err)
	}

	if a.registry != nil {
		a.registry.Store(rootName, &root)
	}
	if a.cache != nil && a.cache.Set(rootName, &root, 1) {
		a.cache.Wait()
	}

	log.Info().Msgf("[stress] %d workers x %d iterations started", a.cfg.Stress.Workers, a.cfg.Stress.Iterations)

	start := time.Now()
	reportCtx, stopReport := context.WithCancel(ctx)
	defer stopReport()
	reportWg := &sync.WaitGroup{}
	reportWg.Add(1)
	go func() {
		defer reportWg.Done()
		a.reportProgress(reportCtx, &root)
	}()

	errCh := make(chan error, a.cfg.Stress.Workers)
	wg := &sync.WaitGroup{}
	for range a.cfg.Stress.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.work(ctx, &root); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)

	// the reporter reads root, so it must be gone before root is released
	stopReport()
	reportWg.Wait()

	if a.registry != nil {
		a.registry.Delete(rootName)
	}
	if a.cache != nil {
		a.cache.Del(rootName)
		a.cache.Wait()
	}

	report := &Report{
		Workers:    a.cfg.Stress.Workers,
		Iterations: a.cfg.Stress.Iterations,
		UseCount:   root.UseCount(),
	}

	root.Release()

	report.Ops = a.ops.Load()
	report.Reads = payload.Reads()
	report.Destroyed = payload.Destroyed()
	report.Elapsed = time.Since(start)
	report.Tracker = a.tracker.Stats()

	if err = report.verify(); err != nil {
		return report, err
	}
	if err = <-errCh; err != nil {
		return report, fmt.Errorf("%w after %d ops: %w", ErrInterrupted, report.Ops, err)
	}
	if want := int64(report.Workers) * int64(report.Iterations); report.Ops != want {
		return report, fmt.Errorf("%w: %d ops done, %d expected", ErrInvariantViolated, report.Ops, want)
	}
	return report, nil
}

func (r *Report) verify() error {
	if r.UseCount != 1 {
		return fmt.Errorf("%w: root use count is %d after all workers joined", ErrInvariantViolated, r.UseCount)
	}
	if r.Destroyed != 1 {
		return fmt.Errorf("%w: payload destroyed %d times", ErrInvariantViolated, r.Destroyed)
	}
	if r.Tracker.Live != 0 {
		return fmt.Errorf("%w: %d control blocks still live", ErrInvariantViolated, r.Tracker.Live)
	}
	return nil
}

func (a *App) reportProgress(ctx context.Context, root *shared.Handle[Payload]) {
	ticker := time.NewTicker(a.cfg.Stress.ReportInterval)
	defer ticker.Stop()

	total := int64(a.cfg.Stress.Workers) * int64(a.cfg.Stress.Iterations)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().
				Int64("ops", a.ops.Load()).
				Int64("total", total).
				Int64("use_count", root.UseCount()).
				Int64("live", a.tracker.Live()).
				Msg("[stress] progress")
		}
	}
}

func (a *App) finish(report *Report, err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	a.finished.Store(true)
	close(a.doneCh)

	if err != nil {
		log.Err(err).Msg("[stress] run failed")
		return
	}
	log.Info().
		Int64("ops", report.Ops).
		Int64("reads", report.Reads).
		Int32("destroyed", report.Destroyed).
		Uint64("allocated", report.Tracker.Allocated).
		Uint64("freed", report.Tracker.Freed).
		Dur("elapsed", report.Elapsed).
		Msg("[stress] run passed")
}

// Snapshot implements api.StatsProvider.
func (a *App) Snapshot() api.Snapshot {
	s := api.Snapshot{
		Workers:    a.cfg.Stress.Workers,
		Iterations: a.cfg.Stress.Iterations,
		Ops:        a.ops.Load(),
		Running:    a.running.Load(),
		Finished:   a.finished.Load(),
		Tracker:    a.tracker.Stats(),
	}
	if err := a.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

func (a *App) stop() {
	log.Info().Msg("[app] stopping stress")
	defer a.cancel()

	a.probe.Stop()
	if a.registry != nil {
		a.registry.Clear()
	}
	if a.cache != nil {
		a.cache.Close()
	}

	log.Info().Msg("[app] stress has been stopped")
}

// IsAlive is called by the liveness probe. A failed run or a stopped server is not alive.
func (a *App) IsAlive(_ context.Context) bool {
	if a.finished.Load() && a.Err() != nil {
		return false
	}
	if a.server != nil && a.finished.Load() && !a.server.IsAlive() {
		log.Info().Msg("[app] http server has gone away")
		return false
	}
	return true
}
