package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrGracefulTimeoutExceeded = errors.New("graceful shutdown timeout exceeded")

// Gracefuller is handed to long-running services which call Done when they have stopped.
type Gracefuller interface {
	Add(n int)
	Done()
}

// Graceful cancels the root context on SIGINT/SIGTERM (or on external cancel)
// and waits for registered services to finish, at most gracefulTimeout.
type Graceful struct {
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	gracefulTimeout time.Duration
}

func NewGraceful(ctx context.Context, cancel context.CancelFunc) *Graceful {
	return &Graceful{ctx: ctx, cancel: cancel, gracefulTimeout: time.Minute}
}

func (g *Graceful) SetGracefulTimeout(timeout time.Duration) {
	g.gracefulTimeout = timeout
}

func (g *Graceful) Add(n int) {
	g.wg.Add(n)
}

func (g *Graceful) Done() {
	g.wg.Done()
}

// ListenCancelAndAwait blocks until a signal arrives or the context is canceled,
// then waits for all registered services.
func (g *Graceful) ListenCancelAndAwait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("[shutdown] received signal %s, shutting down", sig)
		g.cancel()
	case <-g.ctx.Done():
		log.Info().Msg("[shutdown] context canceled, shutting down")
	}

	return g.await()
}

func (g *Graceful) await() error {
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		g.wg.Wait()
	}()

	timer := time.NewTimer(g.gracefulTimeout)
	defer timer.Stop()

	select {
	case <-doneCh:
		log.Info().Msg("[shutdown] all services have been stopped")
		return nil
	case <-timer.C:
		return ErrGracefulTimeoutExceeded
	}
}
