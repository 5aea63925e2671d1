package shared

import (
	"fmt"
	"sync/atomic"
)

// control is the share counter of one pointee. It is allocated separately from
// the pointee and lives exactly as long as it: both are freed when refs drops to zero.
//
// Operations on refs are sequentially consistent (sync/atomic), which covers the
// relaxed increments and acquire-release decrements the counter needs.
type control struct {
	refs    atomic.Int64
	tracker *Tracker
}

func (c *control) retain() {
	if n := c.refs.Add(1); n <= 1 {
		// the count was already zero or negative: the pointee is gone
		panic(fmt.Errorf("shared: retain of released control block (count=%d)", n))
	}
}

// tryRetain adds a share only while another share is still alive.
func (c *control) tryRetain() bool {
	for {
		old := c.refs.Load()
		if old <= 0 {
			return false
		}
		if c.refs.CompareAndSwap(old, old+1) {
			return true
		}
	}
}

// drop gives up one share and returns the remaining count.
func (c *control) drop() int64 {
	n := c.refs.Add(-1)
	if n < 0 {
		panic(fmt.Errorf("shared: double release detected (count=%d)", n))
	}
	return n
}

func (c *control) load() int64 {
	return c.refs.Load()
}
