// Package shard holds the subset of dictionary entries physically stored by
// one peer.
package shard

import (
	"sort"
	"sync"

	"github.com/rfratto/chordkit/peer"
)

// Store holds entries keyed by word. Store is goroutine safe.
type Store struct {
	mut  sync.RWMutex
	data map[string]peer.Entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]peer.Entry)}
}

// Put inserts e, overwriting any entry with the same key.
func (s *Store) Put(e peer.Entry) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.data[e.Key] = e
}

// Get retrieves the entry for key.
func (s *Store) Get(key string) (e peer.Entry, ok bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	e, ok = s.data[key]
	return
}

// Delete removes the entry for key. Returns false if there was no entry.
func (s *Store) Delete(key string) bool {
	s.mut.Lock()
	defer s.mut.Unlock()

	_, ok := s.data[key]
	delete(s.data, key)
	return ok
}

// CompareAndDelete removes the entry for e.Key only if it still holds
// e.Value. Returns true if the entry was removed.
func (s *Store) CompareAndDelete(e peer.Entry) bool {
	s.mut.Lock()
	defer s.mut.Unlock()

	cur, ok := s.data[e.Key]
	if !ok || cur != e {
		return false
	}
	delete(s.data, e.Key)
	return true
}

// Len returns the number of entries in s.
func (s *Store) Len() int {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return len(s.data)
}

// Snapshot returns a copy of every entry, ordered by key.
func (s *Store) Snapshot() []peer.Entry {
	return s.Collect(func(peer.Entry) bool { return true })
}

// Collect returns a copy of every entry for which f returns true, ordered by
// key. f is called with the store locked and must not call back into s.
func (s *Store) Collect(f func(e peer.Entry) bool) []peer.Entry {
	s.mut.RLock()
	res := make([]peer.Entry, 0, len(s.data))
	for _, e := range s.data {
		if f(e) {
			res = append(res, e)
		}
	}
	s.mut.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].Key < res[j].Key })
	return res
}
