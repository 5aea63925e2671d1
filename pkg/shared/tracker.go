package shared

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/shared-handle/pkg/prometheus/metrics"
	"github.com/rs/zerolog/log"
)

const defaultTrackerName = "default"

var (
	defaultTracker     *Tracker
	defaultTrackerOnce sync.Once
)

// Default returns the process-wide tracker used by New and Make.
// It is created on first use and has no limit on live control blocks.
func Default() *Tracker {
	defaultTrackerOnce.Do(func() {
		defaultTracker = NewTracker(defaultTrackerName, 0)
	})
	return defaultTracker
}

// Tracker accounts for the control blocks of handles built from it.
// With a positive maxLive it refuses allocations over the limit with ErrAllocation,
// which is how constrained environments surface allocation failure.
type Tracker struct {
	name      string
	maxLive   int64
	live      atomic.Int64
	allocated atomic.Uint64
	freed     atomic.Uint64
	meter     metrics.Meter
}

// Stats is a point-in-time snapshot of a Tracker.
type Stats struct {
	Name      string `json:"name"`
	MaxLive   int64  `json:"maxLive"`
	Live      int64  `json:"live"`
	Allocated uint64 `json:"allocated"`
	Freed     uint64 `json:"freed"`
}

// NewTracker creates a tracker; maxLive <= 0 means unlimited.
func NewTracker(name string, maxLive int64) *Tracker {
	if maxLive < 0 {
		maxLive = 0
	}
	t := &Tracker{name: name, maxLive: maxLive}
	t.meter = metrics.New(name, func() float64 { return float64(t.Live()) })
	return t
}

func (t *Tracker) Name() string      { return t.name }
func (t *Tracker) MaxLive() int64    { return t.maxLive }
func (t *Tracker) Live() int64       { return t.live.Load() }
func (t *Tracker) Allocated() uint64 { return t.allocated.Load() }
func (t *Tracker) Freed() uint64     { return t.freed.Load() }

// Stats is advisory under concurrency: fields are loaded one by one.
func (t *Tracker) Stats() Stats {
	return Stats{
		Name:      t.name,
		MaxLive:   t.maxLive,
		Live:      t.Live(),
		Allocated: t.Allocated(),
		Freed:     t.Freed(),
	}
}

// alloc reserves a live slot and returns a control block holding one share.
func (t *Tracker) alloc() (*control, error) {
	for {
		live := t.live.Load()
		if t.maxLive > 0 && live >= t.maxLive {
			t.meter.IncAllocFailed()
			log.Warn().Msgf("[tracker] %s: refused control block allocation, live=%d max=%d", t.name, live, t.maxLive)
			return nil, fmt.Errorf("%w: tracker %q reached %d live control blocks", ErrAllocation, t.name, t.maxLive)
		}
		if t.live.CompareAndSwap(live, live+1) {
			break
		}
	}

	t.allocated.Add(1)
	t.meter.IncCreated()

	c := &control{tracker: t}
	c.refs.Store(1)
	return c, nil
}

// free returns the slot of a control block whose count reached zero.
func (t *Tracker) free() {
	t.live.Add(-1)
	t.freed.Add(1)
	t.meter.IncFreed()
	log.Trace().Msgf("[tracker] %s: control block freed", t.name)
}
