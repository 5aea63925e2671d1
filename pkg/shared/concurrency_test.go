package shared

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_ConcurrentCloneRelease(t *testing.T) {
	const (
		workers    = 16
		iterations = 20_000
	)

	tr := newTestTracker(t)
	p, destroyed := newPayload(42)

	root, err := NewIn(tr, p)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		seen atomic.Int64
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				c := root.Clone()
				if c.Deref().value == 42 {
					seen.Add(1)
				}
				if i%64 == 0 {
					runtime.Gosched() // hold the share across a reschedule
				}
				c.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers*iterations), seen.Load())
	assert.Equal(t, int64(1), root.UseCount())
	assert.Equal(t, int32(0), destroyed.Load())

	root.Release()
	assert.Equal(t, int32(1), destroyed.Load())
	assert.Equal(t, int64(0), tr.Live())
}

// markedPayload checks that writes made through every co-owner before its release
// are visible to whichever goroutine performs the final free.
type markedPayload struct {
	marks     []int
	sum       int
	destroyed atomic.Int32
}

func (p *markedPayload) Destroy() {
	for _, m := range p.marks {
		p.sum += m
	}
	p.destroyed.Add(1)
}

func TestHandle_LastReleaseRace(t *testing.T) {
	const owners = 32

	tr := newTestTracker(t)

	for round := 0; round < 200; round++ {
		p := &markedPayload{marks: make([]int, owners)}
		root, err := NewIn(tr, p)
		require.NoError(t, err)

		clones := make([]Handle[markedPayload], owners)
		for i := range clones {
			clones[i] = root.Clone()
		}
		root.Release()

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
		)
		wg.Add(owners)
		for i := range clones {
			go func(i int) {
				defer wg.Done()
				<-start
				clones[i].Deref().marks[i] = 1
				clones[i].Release()
			}(i)
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), p.destroyed.Load(), "round %d", round)
		require.Equal(t, owners, p.sum, "round %d", round)
	}
	assert.Equal(t, int64(0), tr.Live())
}

func TestHandle_ConcurrentTryCloneVersusRelease(t *testing.T) {
	const readers = 8

	tr := newTestTracker(t)

	for round := 0; round < 500; round++ {
		p, destroyed := newPayload(round)
		owner, err := NewIn(tr, p)
		require.NoError(t, err)
		stored := owner

		var wg sync.WaitGroup
		wg.Add(readers + 1)
		for r := 0; r < readers; r++ {
			go func() {
				defer wg.Done()
				if c, ok := stored.TryClone(); ok {
					// a successful TryClone always observes a live pointee
					assert.Equal(t, int32(0), destroyed.Load())
					c.Release()
				}
			}()
		}
		go func() {
			defer wg.Done()
			owner.Release()
		}()
		wg.Wait()

		require.Equal(t, int32(1), destroyed.Load(), "round %d", round)
	}
	assert.Equal(t, int64(0), tr.Live())
}

func TestHandle_ConcurrentAssignDistinctHandles(t *testing.T) {
	const workers = 8

	tr := newTestTracker(t)
	p1, destroyed1 := newPayload(1)
	p2, destroyed2 := newPayload(2)

	h1, err := NewIn(tr, p1)
	require.NoError(t, err)
	h2, err := NewIn(tr, p2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			local := h1.Clone()
			for i := 0; i < 5_000; i++ {
				if (i+w)%2 == 0 {
					local.Assign(&h2)
				} else {
					local.Assign(&h1)
				}
			}
			local.Release()
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(1), h1.UseCount())
	assert.Equal(t, int64(1), h2.UseCount())
	h1.Release()
	h2.Release()
	assert.Equal(t, int32(1), destroyed1.Load())
	assert.Equal(t, int32(1), destroyed2.Load())
}
