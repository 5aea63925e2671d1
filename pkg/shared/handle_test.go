package shared

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	value     int
	destroyed *atomic.Int32
}

func (p *payload) Destroy() {
	p.destroyed.Add(1)
}

func newPayload(value int) (*payload, *atomic.Int32) {
	destroyed := &atomic.Int32{}
	return &payload{value: value, destroyed: destroyed}, destroyed
}

func newTestTracker(t *testing.T) *Tracker {
	return NewTracker("test_"+t.Name(), 0)
}

func TestHandle_Scenario42(t *testing.T) {
	tr := newTestTracker(t)

	h1, err := MakeIn(tr, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h1.UseCount())
	assert.Equal(t, 42, *h1.Deref())

	h2 := h1.Clone()
	assert.Equal(t, int64(2), h1.UseCount())
	assert.Equal(t, int64(2), h2.UseCount())
	assert.Same(t, h1.Get(), h2.Get())

	h2.Release()
	assert.Equal(t, int64(1), h1.UseCount())
	assert.True(t, h2.IsEmpty())

	h1.Release()
	assert.Nil(t, h1.Get())
	assert.Equal(t, int64(0), tr.Live())
	assert.Equal(t, uint64(1), tr.Freed())
}

func TestHandle_CountMatchesLiveHandles(t *testing.T) {
	tr := newTestTracker(t)
	p, destroyed := newPayload(1)

	root, err := NewIn(tr, p)
	require.NoError(t, err)

	copies := make([]Handle[payload], 0, 10)
	for i := 0; i < 10; i++ {
		copies = append(copies, root.Clone())
		assert.Equal(t, int64(i+2), root.UseCount())
	}

	moved := copies[0].Move()
	assert.Equal(t, int64(11), root.UseCount(), "move must not change the count")

	for i := len(copies) - 1; i >= 1; i-- {
		copies[i].Release()
		assert.Equal(t, int64(i+1), moved.UseCount())
	}

	moved.Release()
	assert.Equal(t, int64(1), root.UseCount())
	assert.Equal(t, int32(0), destroyed.Load())

	root.Release()
	assert.Equal(t, int32(1), destroyed.Load())
}

func TestHandle_DestroyedExactlyOnce(t *testing.T) {
	tr := newTestTracker(t)

	for n := 1; n <= 5; n++ {
		p, destroyed := newPayload(n)
		h, err := NewIn(tr, p)
		require.NoError(t, err)

		var a, b Handle[payload]
		a.Assign(&h)
		b = a.Clone()
		c := b.Move()
		d := Empty[payload]()
		d.AssignMove(&c)

		for _, x := range []*Handle[payload]{&h, &a, &b, &c, &d} {
			x.Release()
			x.Release() // second release of the same handle is a no-op
		}
		assert.Equal(t, int32(1), destroyed.Load(), "round %d", n)
	}
	assert.Equal(t, int64(0), tr.Live())
}

func TestHandle_SelfAssign(t *testing.T) {
	tr := newTestTracker(t)
	p, destroyed := newPayload(7)

	a, err := NewIn(tr, p)
	require.NoError(t, err)
	alias := &a

	a.Assign(alias)
	assert.Equal(t, int64(1), a.UseCount())
	assert.Same(t, p, a.Get())

	a.AssignMove(&a)
	assert.Equal(t, int64(1), a.UseCount())
	assert.Same(t, p, a.Get())
	assert.Equal(t, int32(0), destroyed.Load())
	assert.Equal(t, 7, a.Deref().value)

	a.Release()
	assert.Equal(t, int32(1), destroyed.Load())
}

func TestHandle_AssignRelated(t *testing.T) {
	tr := newTestTracker(t)
	p, destroyed := newPayload(1)

	a, err := NewIn(tr, p)
	require.NoError(t, err)
	b := a.Clone()

	a.Assign(&b)
	assert.Equal(t, int64(2), a.UseCount())

	a.AssignMove(&b)
	assert.True(t, b.IsEmpty())
	assert.Equal(t, int64(1), a.UseCount())
	assert.Equal(t, int32(0), destroyed.Load())

	a.Release()
	assert.Equal(t, int32(1), destroyed.Load())
}

func TestHandle_AssignReleasesPrevious(t *testing.T) {
	tr := newTestTracker(t)
	p1, destroyed1 := newPayload(1)
	p2, destroyed2 := newPayload(2)

	a, err := NewIn(tr, p1)
	require.NoError(t, err)
	b, err := NewIn(tr, p2)
	require.NoError(t, err)

	a.Assign(&b)
	assert.Equal(t, int32(1), destroyed1.Load(), "a was the last owner of p1")
	assert.Equal(t, int64(2), b.UseCount())
	assert.True(t, a.SharesWith(&b))

	var empty Handle[payload]
	a.Assign(&empty)
	assert.True(t, a.IsEmpty())
	assert.Equal(t, int64(1), b.UseCount())

	p3, destroyed3 := newPayload(3)
	c, err := NewIn(tr, p3)
	require.NoError(t, err)
	c.AssignMove(&b)
	assert.True(t, b.IsEmpty())
	assert.Equal(t, int64(1), c.UseCount())
	assert.Same(t, p2, c.Get())
	assert.Equal(t, int32(1), destroyed3.Load())

	c.Release()
	assert.Equal(t, int32(1), destroyed2.Load())
	assert.Equal(t, int64(0), tr.Live())
}

func TestHandle_MoveLeavesSourceEmpty(t *testing.T) {
	tr := newTestTracker(t)
	p, destroyed := newPayload(5)

	a, err := NewIn(tr, p)
	require.NoError(t, err)

	b := a.Move()
	assert.Nil(t, a.Get())
	assert.Equal(t, int64(0), a.UseCount())
	assert.Equal(t, int64(1), b.UseCount())

	a.Release()
	assert.Equal(t, int32(0), destroyed.Load())

	var c Handle[payload]
	c.AssignMove(&b)
	assert.Nil(t, b.Get())
	assert.Equal(t, int64(0), b.UseCount())

	c.Release()
	assert.Equal(t, int32(1), destroyed.Load())
}

func TestHandle_EmptySafety(t *testing.T) {
	tr := newTestTracker(t)

	h, err := NewIn[payload](tr, nil)
	require.NoError(t, err)
	assert.True(t, h.IsEmpty())
	assert.Equal(t, int64(0), h.UseCount())
	assert.Nil(t, h.Get())
	assert.Nil(t, h.Tracker())

	c := h.Clone()
	assert.True(t, c.IsEmpty())
	_, ok := h.TryClone()
	assert.False(t, ok)

	for i := 0; i < 10; i++ {
		e := Empty[payload]()
		e.Release()
	}
	h.Release()
	c.Release()

	assert.Equal(t, uint64(0), tr.Allocated())
	assert.Equal(t, uint64(0), tr.Freed())
	assert.False(t, h.SharesWith(&c), "empty handles share nothing")
}

func TestHandle_DerefEmptyPanics(t *testing.T) {
	var h Handle[int]

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrNullDereference))

		var nde NullDereferenceError
		require.True(t, errors.As(err, &nde))
		assert.Equal(t, "*int", nde.Type)
	}()
	h.Deref()
}

func TestHandle_DoubleReleaseOfBitwiseCopyPanics(t *testing.T) {
	tr := newTestTracker(t)
	p, destroyed := newPayload(1)

	h, err := NewIn(tr, p)
	require.NoError(t, err)
	alias := h // bitwise copy, no share added

	h.Release()
	assert.Equal(t, int32(1), destroyed.Load())
	assert.Panics(t, func() { alias.Release() })
	assert.Equal(t, int32(1), destroyed.Load())
}

func TestHandle_Reset(t *testing.T) {
	tr := newTestTracker(t)
	p1, destroyed1 := newPayload(1)
	p2, destroyed2 := newPayload(2)

	h, err := NewIn(tr, p1)
	require.NoError(t, err)
	other := h.Clone()

	require.NoError(t, h.Reset(p1))
	assert.Equal(t, int64(2), h.UseCount(), "reset to the owned pointee is a no-op")

	require.NoError(t, h.Reset(p2))
	assert.Same(t, p2, h.Get())
	assert.Equal(t, int64(1), h.UseCount())
	assert.Equal(t, int64(1), other.UseCount())
	assert.Same(t, tr, h.Tracker())

	other.Release()
	assert.Equal(t, int32(1), destroyed1.Load())

	require.NoError(t, h.Reset(nil))
	assert.True(t, h.IsEmpty())
	assert.Equal(t, int32(1), destroyed2.Load())
	assert.Equal(t, int64(0), tr.Live())
}

func TestHandle_TryCloneAfterLastRelease(t *testing.T) {
	tr := newTestTracker(t)
	p, _ := newPayload(1)

	h, err := NewIn(tr, p)
	require.NoError(t, err)
	stored := h // what a container keeps; it never releases through this copy

	c, ok := stored.TryClone()
	require.True(t, ok)
	assert.Equal(t, int64(2), h.UseCount())
	c.Release()

	h.Release()
	_, ok = stored.TryClone()
	assert.False(t, ok)
}

func TestHandle_String(t *testing.T) {
	h, err := MakeIn(newTestTracker(t), "x")
	require.NoError(t, err)
	defer h.Release()

	assert.Contains(t, h.String(), "use_count: 1")
	assert.Contains(t, h.String(), "*string")

	// handles are returned by value, so printing one must not need a pointer
	assert.Equal(t, h.String(), fmt.Sprint(h))
	assert.Equal(t, h.String(), fmt.Sprintf("%v", &h))

	var empty Handle[string]
	assert.Contains(t, fmt.Sprint(empty), "use_count: 0")
}
