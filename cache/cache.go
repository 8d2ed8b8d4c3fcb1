// Package cache provides bounded in-memory storage for load results keyed by
// query fingerprint.
package cache

import (
	"sync"
	"time"

	"github.com/tesseradata/tessera/schema"
)

// DefaultCapacity bounds the number of cached result sets per store.
const DefaultCapacity = 50

// Entry is one cached result set. Data is owned by the cache; both Set and
// Get copy rows so callers and cache never share mutable state.
type Entry struct {
	Data      []schema.Row
	Total     int
	Timestamp time.Time
}

// Store caches load results with lazy TTL expiry and insertion-order
// eviction above capacity. There is no background sweeper: expired entries
// are dropped when read.
type Store struct {
	mu       sync.Mutex
	entries  map[string]Entry
	order    []string
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides the entry cap. Values below one fall back to the
// default.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithTTL sets the entry lifetime. Zero or negative disables expiry.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		s.ttl = d
	}
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:  make(map[string]Entry),
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Get returns the entry for key. An entry older than the TTL is removed and
// reported as a miss. The returned rows are copies.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	if s.expired(e) {
		s.remove(key)
		return Entry{}, false
	}
	return Entry{Data: cloneRows(e.Data), Total: e.Total, Timestamp: e.Timestamp}, true
}

// Set stores a result set under key. Overwriting an existing key refreshes
// its payload and timestamp without changing its eviction position; a new
// key above capacity evicts the oldest-inserted entry.
func (s *Store) Set(key string, data []schema.Row, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{Data: cloneRows(data), Total: total, Timestamp: s.now()}
	if _, exists := s.entries[key]; exists {
		s.entries[key] = entry
		return
	}
	if len(s.order) >= s.capacity {
		s.remove(s.order[0])
	}
	s.entries[key] = entry
	s.order = append(s.order, key)
}

// Delete removes a single key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(key)
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	s.order = s.order[:0]
}

// Len reports the number of live entries, counting expired ones that have
// not been read out yet.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) expired(e Entry) bool {
	if s.ttl <= 0 {
		return false
	}
	return e.Timestamp.Add(s.ttl).Before(s.now())
}

func (s *Store) remove(key string) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func cloneRows(rows []schema.Row) []schema.Row {
	if rows == nil {
		return nil
	}
	out := make([]schema.Row, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out
}
