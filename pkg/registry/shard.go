package registry

import (
	"sync"

	"github.com/Borislavv/shared-handle/pkg/shared"
)

// shard is a single partition of the registry with its own lock.
// Every stored handle holds one share owned by the shard.
type shard[T any] struct {
	sync.RWMutex
	items map[string]shared.Handle[T]
}

func newShard[T any](defaultLen int) *shard[T] {
	return &shard[T]{items: make(map[string]shared.Handle[T], defaultLen)}
}

// store keeps a clone of h under name and returns the handle it replaced (to be released by the caller).
func (s *shard[T]) store(name string, h *shared.Handle[T]) (prev shared.Handle[T], replaced bool) {
	next := h.Clone()

	s.Lock()
	prev, replaced = s.items[name]
	s.items[name] = next
	s.Unlock()

	return prev, replaced
}

// load returns a new share of the handle stored under name.
func (s *shard[T]) load(name string) (shared.Handle[T], bool) {
	s.RLock()
	defer s.RUnlock()

	h, ok := s.items[name]
	if !ok {
		return shared.Handle[T]{}, false
	}
	return h.Clone(), true
}

func (s *shard[T]) remove(name string) (shared.Handle[T], bool) {
	s.Lock()
	h, ok := s.items[name]
	if ok {
		delete(s.items, name)
	}
	s.Unlock()
	return h, ok
}

func (s *shard[T]) len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.items)
}

// drain empties the shard and returns the handles it owned.
func (s *shard[T]) drain() []shared.Handle[T] {
	s.Lock()
	out := make([]shared.Handle[T], 0, len(s.items))
	for _, h := range s.items {
		out = append(out, h)
	}
	s.items = make(map[string]shared.Handle[T], len(out))
	s.Unlock()
	return out
}
