// Package cache is a bounded cache of shared handles. The cache owns one share
// per stored value; the share is released when the value leaves the cache
// for any reason (eviction, rejection, replacement, deletion, Clear or Close).
package cache

import (
	"fmt"

	"github.com/Borislavv/shared-handle/pkg/config"
	"github.com/Borislavv/shared-handle/pkg/shared"
	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"
)

type Cache[T any] struct {
	c *ristretto.Cache
}

func New[T any](cfg config.Cache) (*Cache[T], error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        cfg.BufferItems,
		IgnoreInternalCost: true,
		OnExit:             release[T],
	})
	if err != nil {
		return nil, fmt.Errorf("init ristretto cache: %w", err)
	}
	return &Cache[T]{c: c}, nil
}

// release drops the cache's share of a value that left the cache.
// Values are stored as Handle copies, so releasing one never touches a field
// another goroutine may be reading.
func release[T any](val interface{}) {
	h, ok := val.(shared.Handle[T])
	if !ok {
		log.Error().Msgf("[cache] unexpected value of type %T left the cache", val)
		return
	}
	h.Release()
}

// Set stores a share of h under key. It reports false if the value was dropped
// before reaching the cache, in which case no share is kept. Admission is
// asynchronous: a value accepted here may still be rejected by the policy later.
func (c *Cache[T]) Set(key string, h *shared.Handle[T], cost int64) bool {
	if h.IsEmpty() {
		return false
	}
	v := h.Clone()
	if !c.c.Set(key, v, cost) {
		v.Release()
		return false
	}
	return true
}

// Get returns a new share of the value under key. A value that is being
// released by the cache concurrently is reported as a miss.
func (c *Cache[T]) Get(key string) (shared.Handle[T], bool) {
	val, ok := c.c.Get(key)
	if !ok {
		return shared.Handle[T]{}, false
	}
	h, ok := val.(shared.Handle[T])
	if !ok {
		return shared.Handle[T]{}, false
	}
	return h.TryClone()
}

// Del drops the cache's share of key.
func (c *Cache[T]) Del(key string) {
	c.c.Del(key)
}

// Wait blocks until pending writes have been applied.
func (c *Cache[T]) Wait() {
	c.c.Wait()
}

// Clear drops every share owned by the cache.
func (c *Cache[T]) Clear() {
	c.c.Clear()
}

// Close releases all stored values and stops the cache.
func (c *Cache[T]) Close() {
	c.c.Clear()
	c.c.Close()
}
