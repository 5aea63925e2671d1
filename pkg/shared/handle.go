// Package shared provides Handle, a shared-ownership reference to a heap value
// with an atomically maintained share count.
//
// All handles obtained from one another through Clone, Move, Assign or AssignMove
// co-own a single pointee and a single control block. The last share to be
// released frees both: the pointee's Destroy method (if *T implements Destroyer)
// runs exactly once, and the control block is returned to its Tracker.
//
// Handle only synchronizes its own bookkeeping. Concurrent mutation of the
// pointee through different handles needs external synchronization.
package shared

import "fmt"

// Destroyer is implemented by pointees that own resources to be freed when
// the last share is released.
type Destroyer interface {
	Destroy()
}

// Handle is a shared-ownership reference to a *T. The zero value is an empty handle.
//
// A plain Go assignment (b := a) copies the handle without adding a share.
// Use Clone to obtain another co-owner and Move to transfer one. Every handle
// that holds a share must eventually be released exactly once.
//
// A single Handle value must not be used from several goroutines at once;
// distinct handles sharing one pointee may be used, cloned and released concurrently.
type Handle[T any] struct {
	ptr *T
	ctl *control
}

// Empty returns an empty handle. It never allocates.
func Empty[T any]() Handle[T] {
	return Handle[T]{}
}

// New takes ownership of p using the Default tracker. A nil p yields an empty handle.
// On error the caller still owns p.
func New[T any](p *T) (Handle[T], error) {
	return NewIn(Default(), p)
}

// NewIn takes ownership of p and accounts its control block in tracker.
func NewIn[T any](tracker *Tracker, p *T) (Handle[T], error) {
	if p == nil {
		return Handle[T]{}, nil
	}
	ctl, err := tracker.alloc()
	if err != nil {
		return Handle[T]{}, err
	}
	return Handle[T]{ptr: p, ctl: ctl}, nil
}

// Make allocates a copy of v and returns the handle owning it.
func Make[T any](v T) (Handle[T], error) {
	return MakeIn(Default(), v)
}

// MakeIn is Make with an explicit tracker.
func MakeIn[T any](tracker *Tracker, v T) (Handle[T], error) {
	p := new(T)
	*p = v
	return NewIn(tracker, p)
}

// Clone returns a new handle sharing h's pointee. Cloning an empty handle yields an empty one.
func (h *Handle[T]) Clone() Handle[T] {
	if h.ctl == nil {
		return Handle[T]{}
	}
	h.ctl.retain()
	h.ctl.tracker.meter.IncCloned()
	return Handle[T]{ptr: h.ptr, ctl: h.ctl}
}

// TryClone is Clone for handles that may be released concurrently by another owner,
// e.g. a copy of a handle stored in a cache. It adds a share only if the pointee
// is still alive and reports whether it did.
func (h *Handle[T]) TryClone() (Handle[T], bool) {
	if h.ctl == nil || !h.ctl.tryRetain() {
		return Handle[T]{}, false
	}
	h.ctl.tracker.meter.IncCloned()
	return Handle[T]{ptr: h.ptr, ctl: h.ctl}, true
}

// Move transfers h's share to the returned handle and leaves h empty.
// The share count does not change.
func (h *Handle[T]) Move() Handle[T] {
	moved := *h
	*h = Handle[T]{}
	return moved
}

// Assign makes h share src's pointee and releases h's previous share.
// Assigning a handle to itself, or to a handle already sharing its pointee, is a no-op.
func (h *Handle[T]) Assign(src *Handle[T]) {
	if h == src || h.ctl == src.ctl {
		return
	}
	// acquire the new share before giving up the old one
	next := src.Clone()
	h.releaseShare()
	*h = next
}

// AssignMove takes src's share, leaves src empty and releases h's previous share.
// Self-move is a no-op.
func (h *Handle[T]) AssignMove(src *Handle[T]) {
	if h == src {
		return
	}
	if h.ctl == src.ctl {
		// h keeps its own share, so src's one is surplus and never the last
		src.releaseShare()
		return
	}
	next := src.Move()
	h.releaseShare()
	*h = next
}

// Release gives up h's share and leaves h empty. If it was the last share,
// the pointee is destroyed and the control block freed. Releasing an empty
// handle is a no-op, so Release may be deferred and still called early.
func (h *Handle[T]) Release() {
	h.releaseShare()
}

// Reset releases h's share and makes h own p, as if built by NewIn with h's tracker
// (or Default for an empty handle). Resetting to the pointee h already owns is a no-op.
// On ErrAllocation h is left untouched and the caller keeps ownership of p.
func (h *Handle[T]) Reset(p *T) error {
	if p != nil && p == h.ptr {
		return nil
	}
	tracker := Default()
	if h.ctl != nil {
		tracker = h.ctl.tracker
	}
	next, err := NewIn(tracker, p)
	if err != nil {
		return err
	}
	h.releaseShare()
	*h = next
	return nil
}

// Get returns the pointee without adding a share, or nil for an empty handle.
func (h *Handle[T]) Get() *T {
	return h.ptr
}

// Deref returns the pointee and panics with NullDereferenceError if h is empty.
func (h *Handle[T]) Deref() *T {
	if h.ptr == nil {
		panic(NullDereferenceError{Type: fmt.Sprintf("%T", h.ptr)})
	}
	return h.ptr
}

// UseCount returns the number of live shares of h's pointee, 0 for an empty handle.
// The value is advisory: it is exact only while no other goroutine clones or
// releases a co-owner.
func (h *Handle[T]) UseCount() int64 {
	if h.ctl == nil {
		return 0
	}
	return h.ctl.load()
}

// IsEmpty reports whether h holds no share.
func (h *Handle[T]) IsEmpty() bool {
	return h.ctl == nil
}

// SharesWith reports whether h and o are non-empty and co-own the same pointee.
func (h *Handle[T]) SharesWith(o *Handle[T]) bool {
	return h.ctl != nil && h.ctl == o.ctl
}

// Tracker returns the tracker accounting h's control block, nil for an empty handle.
func (h *Handle[T]) Tracker() *Tracker {
	if h.ctl == nil {
		return nil
	}
	return h.ctl.tracker
}

// String has a value receiver so handles print the same whether passed by value or by pointer.
func (h Handle[T]) String() string {
	return fmt.Sprintf("shared.Handle[%T]{ptr: %p, use_count: %d}", h.ptr, h.ptr, h.UseCount())
}

// releaseShare empties h and frees the pointee and control block when h held the last share.
func (h *Handle[T]) releaseShare() {
	ptr, ctl := h.ptr, h.ctl
	if ctl == nil {
		return
	}
	h.ptr, h.ctl = nil, nil

	tracker := ctl.tracker
	tracker.meter.IncReleased()

	if ctl.drop() == 0 {
		defer tracker.free()
		destroy(ptr)
	}
}

func destroy[T any](ptr *T) {
	if d, ok := any(ptr).(Destroyer); ok {
		d.Destroy()
	}
}
