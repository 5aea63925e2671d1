package metrics

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/shared-handle/pkg/prometheus/metrics/keyword"
	"github.com/VictoriaMetrics/metrics"
)

// Meter records lifecycle events of shared handles belonging to one tracker.
type Meter interface {
	IncCreated()
	IncCloned()
	IncReleased()
	IncFreed()
	IncAllocFailed()
}

// Metrics is a Meter backed by VictoriaMetrics counters labeled with the tracker name.
// Counters are resolved once, so the hot path is a single atomic add.
type Metrics struct {
	created     *metrics.Counter
	cloned      *metrics.Counter
	released    *metrics.Counter
	freed       *metrics.Counter
	allocFailed *metrics.Counter
}

// New registers (or reuses) the counters of the given tracker and a gauge reading live() on scrape.
// Trackers sharing a name share the counters; the gauge reads the one built last.
func New(tracker string, live func() float64) *Metrics {
	label := trackerLabel(tracker)

	m := &Metrics{
		created:     metrics.GetOrCreateCounter(keyword.HandlesCreated + label),
		cloned:      metrics.GetOrCreateCounter(keyword.HandlesCloned + label),
		released:    metrics.GetOrCreateCounter(keyword.HandlesReleased + label),
		freed:       metrics.GetOrCreateCounter(keyword.HandlesFreed + label),
		allocFailed: metrics.GetOrCreateCounter(keyword.AllocFailed + label),
	}
	if live != nil {
		registerLive(keyword.LiveControlBlocks+label, live)
	}

	return m
}

func (m *Metrics) IncCreated()     { m.created.Inc() }
func (m *Metrics) IncCloned()      { m.cloned.Inc() }
func (m *Metrics) IncReleased()    { m.released.Inc() }
func (m *Metrics) IncFreed()       { m.freed.Inc() }
func (m *Metrics) IncAllocFailed() { m.allocFailed.Inc() }

// IncRequest counts a served HTTP request by path and status code.
func IncRequest(path string, status int) {
	buf := getBuf()
	defer putBuf(buf)

	*buf = append(*buf, keyword.HttpRequests...)
	*buf = append(*buf, `{path="`...)
	*buf = append(*buf, sanitize(path)...)
	*buf = append(*buf, `",status="`...)
	*buf = append(*buf, statusText(status)...)
	*buf = append(*buf, `"}`...)

	metrics.GetOrCreateCounter(string(*buf)).Inc()
}

// liveSources maps a gauge name to the live callback currently behind it.
// The gauge callback is fixed at registration, so it reads through this indirection.
var liveSources sync.Map // map[string]*atomic.Pointer[func() float64]

func registerLive(name string, live func() float64) {
	actual, loaded := liveSources.LoadOrStore(name, &atomic.Pointer[func() float64]{})
	src := actual.(*atomic.Pointer[func() float64])
	src.Store(&live)
	if loaded {
		return
	}
	metrics.GetOrCreateGauge(name, func() float64 {
		if f := src.Load(); f != nil {
			return (*f)()
		}
		return 0
	})
}

func trackerLabel(tracker string) string {
	return `{tracker="` + sanitize(tracker) + `"}`
}

// sanitize escapes quotes and backslashes inside label values.
func sanitize(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 128)
		return &b
	},
}

func getBuf() *[]byte {
	return bufPool.Get().(*[]byte)
}

func putBuf(b *[]byte) {
	*b = (*b)[:0]
	bufPool.Put(b)
}
