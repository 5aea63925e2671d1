package liveness

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Service is anything able to report its own health.
type Service interface {
	IsAlive(ctx context.Context) bool
}

type Prober interface {
	Watch(services ...Service)
	IsAlive() bool
	Stop()
}

// Probe polls watched services every timeout and keeps the aggregated result.
type Probe struct {
	timeout time.Duration
	alive   atomic.Bool
	stopCh  chan struct{}
	once    sync.Once
}

func NewProbe(timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Probe{timeout: timeout, stopCh: make(chan struct{})}
}

// Watch starts polling services in the background; it does not block.
func (p *Probe) Watch(services ...Service) {
	go p.watch(services)
}

func (p *Probe) IsAlive() bool {
	return p.alive.Load()
}

func (p *Probe) Stop() {
	p.once.Do(func() { close(p.stopCh) })
}

func (p *Probe) watch(services []Service) {
	ticker := time.NewTicker(p.timeout)
	defer ticker.Stop()

	p.check(services)
	for {
		select {
		case <-p.stopCh:
			p.alive.Store(false)
			log.Info().Msg("[probe] liveness probe stopped")
			return
		case <-ticker.C:
			p.check(services)
		}
	}
}

func (p *Probe) check(services []Service) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	for _, svc := range services {
		if !svc.IsAlive(ctx) {
			if p.alive.Swap(false) {
				log.Warn().Msg("[probe] service is not alive")
			}
			return
		}
	}
	p.alive.Store(true)
}
