// Package registry keeps named shared handles in a sharded map.
package registry

import (
	"errors"
	"fmt"

	"github.com/Borislavv/shared-handle/pkg/shared"
	"github.com/zeebo/xxh3"
)

var ErrInvalidShardsNum = errors.New("shards number must be a power of two")

// Registry maps names to handles. It owns one share per stored name; callers
// receive their own shares from Load and must release them.
type Registry[T any] struct {
	shards []*shard[T]
	mask   uint64
}

// New creates a registry with shardsNum partitions (a power of two).
func New[T any](shardsNum uint64) (*Registry[T], error) {
	if shardsNum == 0 || shardsNum&(shardsNum-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShardsNum, shardsNum)
	}
	r := &Registry[T]{
		shards: make([]*shard[T], shardsNum),
		mask:   shardsNum - 1,
	}
	for i := range r.shards {
		r.shards[i] = newShard[T](8)
	}
	return r, nil
}

func (r *Registry[T]) shard(name string) *shard[T] {
	return r.shards[xxh3.HashString(name)&r.mask]
}

// Store adds a share of h under name. A handle previously stored under the same
// name loses the registry's share. Storing an empty handle is the same as Delete.
func (r *Registry[T]) Store(name string, h *shared.Handle[T]) {
	if h.IsEmpty() {
		r.Delete(name)
		return
	}
	if prev, ok := r.shard(name).store(name, h); ok {
		prev.Release()
	}
}

// Load returns a new share of the handle stored under name.
func (r *Registry[T]) Load(name string) (shared.Handle[T], bool) {
	return r.shard(name).load(name)
}

// Delete drops the registry's share of name and reports whether it was present.
func (r *Registry[T]) Delete(name string) bool {
	h, ok := r.shard(name).remove(name)
	if ok {
		h.Release()
	}
	return ok
}

// Len is advisory under concurrent writes.
func (r *Registry[T]) Len() int {
	n := 0
	for _, s := range r.shards {
		n += s.len()
	}
	return n
}

// Range calls fn with a temporary share of every stored handle until fn returns false.
// The share is released after fn returns; fn must Clone to keep it.
func (r *Registry[T]) Range(fn func(name string, h *shared.Handle[T]) bool) {
	for _, s := range r.shards {
		s.RLock()
		names := make([]string, 0, len(s.items))
		for name := range s.items {
			names = append(names, name)
		}
		s.RUnlock()

		for _, name := range names {
			h, ok := s.load(name)
			if !ok {
				continue
			}
			cont := fn(name, &h)
			h.Release()
			if !cont {
				return
			}
		}
	}
}

// Clear drops every share owned by the registry.
func (r *Registry[T]) Clear() {
	for _, s := range r.shards {
		for _, h := range s.drain() {
			h.Release()
		}
	}
}
