package memstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/datagridgo/internal/cache"
)

// Store is an in-memory implementation of cache.Store.
//
// The store maintains two independent sync.Maps:
//   - entries: key strings to *cache.Entry
//   - hits: key strings to *atomic.Int64, the number of Gets served per key
type Store struct {
	entries sync.Map
	hits    sync.Map
}

var _ cache.Store = (*Store)(nil)

// New creates a new, empty in-memory cache store.
func New() *Store {
	return &Store{}
}

// Get returns a clone of the entry stored under key.
func (s *Store) Get(ctx context.Context, key cache.Key) (*cache.Entry, bool, error) {
	v, ok := s.entries.Load(key.String())
	if !ok {
		return nil, false, nil
	}
	counter, _ := s.hits.LoadOrStore(key.String(), new(atomic.Int64))
	counter.(*atomic.Int64).Add(1)
	return v.(*cache.Entry).Clone(), true, nil
}

// Put stores a clone of entry under key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key cache.Key, entry *cache.Entry) error {
	s.entries.Store(key.String(), entry.Clone())
	return nil
}

// Invalidate removes key. Removing a missing key is not an error.
func (s *Store) Invalidate(ctx context.Context, key cache.Key) error {
	s.entries.Delete(key.String())
	s.hits.Delete(key.String())
	return nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Hits returns how many times key has been served.
func (s *Store) Hits(key cache.Key) int64 {
	v, ok := s.hits.Load(key.String())
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}
