package stress

import (
	"context"
	"runtime"
	"time"

	"github.com/Borislavv/shared-handle/pkg/shared"
	"golang.org/x/time/rate"
)

const yieldEvery = 64

// work takes and drops a share of root Iterations times. Shares are obtained
// in turn from the registry, the cache and root itself, and passed through
// move and copy assignment on the way, so every path that changes the count is hit.
// It returns early with the cause when ctx is done.
func (a *App) work(ctx context.Context, root *shared.Handle[Payload]) error {
	var limiter *rate.Limiter
	if a.cfg.Stress.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(a.cfg.Stress.Rate), 1)
	}

	var held, dup shared.Handle[Payload]
	defer held.Release()
	defer dup.Release()

	for i := 0; i < a.cfg.Stress.Iterations; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		h := a.acquire(root, i)
		held.AssignMove(&h)
		held.Deref().Touch()

		if i%4 == 0 {
			dup.Assign(&held)
		}

		if a.cfg.Stress.Hold > 0 {
			time.Sleep(a.cfg.Stress.Hold)
		} else if i%yieldEvery == 0 {
			runtime.Gosched()
		}

		held.Release()
		dup.Release()
		a.ops.Add(1)
	}
	return nil
}

func (a *App) acquire(root *shared.Handle[Payload], i int) shared.Handle[Payload] {
	switch {
	case a.registry != nil && i%3 == 0:
		if h, ok := a.registry.Load(rootName); ok {
			return h
		}
	case a.cache != nil && i%3 == 1:
		if h, ok := a.cache.Get(rootName); ok {
			return h
		}
	}
	return root.Clone()
}
