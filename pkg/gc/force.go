package gc

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/Borislavv/shared-handle/pkg/config"
	"github.com/rs/zerolog/log"
)

// Tracked is anything that reports how many control blocks it keeps alive.
type Tracked interface {
	Name() string
	Live() int64
}

// Run periodically forces a collection and returns freed pages to the OS
// until ctx is done. Released pointees are only reclaimed by the collector,
// so each pass logs the live control blocks next to the heap size: a heap
// that keeps growing while live stays flat points at a leak outside the handles.
// A zero interval disables the corresponding pass. Run does not block.
func Run(ctx context.Context, cfg config.GC, tracked ...Tracked) {
	if cfg.Interval <= 0 && cfg.FreeOsMemInterval <= 0 {
		return
	}
	go run(ctx, cfg, tracked)
}

func run(ctx context.Context, cfg config.GC, tracked []Tracked) {
	gcTicker := newTicker(cfg.Interval)
	defer gcTicker.Stop()

	freeOsMemTicker := newTicker(cfg.FreeOsMemInterval)
	defer freeOsMemTicker.Stop()

	log.Info().Msgf(
		"[force-GC] running with gcInterval=%s, freeOsMemInterval=%s",
		cfg.Interval, cfg.FreeOsMemInterval,
	)

	var lastAlloc uint64
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("[force-GC] stopped")
			return

		case <-gcTicker.C:
			runtime.GC()

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)

			ev := log.Info()
			for _, t := range tracked {
				ev = ev.Int64(t.Name()+"_live", t.Live())
			}
			ev.Msgf("[force-GC] forced GC pass (heap %s, pause %s)", fmtBytes(mem.HeapAlloc), lastPause(&mem))

			lastAlloc = mem.Alloc

		case <-freeOsMemTicker.C:
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			if lastAlloc == 0 {
				lastAlloc = mem.Alloc
				continue
			}

			debug.FreeOSMemory()

			log.Info().Msgf(
				"[force-GC] flushed freed memory to OS (alloc was %s, now %s)",
				fmtBytes(lastAlloc), fmtBytes(mem.Alloc),
			)
			lastAlloc = mem.Alloc
		}
	}
}

// newTicker returns a stopped ticker for a disabled pass; its channel never fires.
func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		t := time.NewTicker(time.Hour)
		t.Stop()
		return t
	}
	return time.NewTicker(d)
}

// fmtBytes formats a byte count to a human-readable string.
func fmtBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func lastPause(mem *runtime.MemStats) time.Duration {
	if mem.NumGC == 0 {
		return 0
	}
	return time.Duration(mem.PauseNs[(mem.NumGC+255)%256])
}
