// Package cache memoizes read results from the case-record service for a
// bounded time. A Store is created empty, shared by every workflow session of
// one login and cleared on logout.
package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is how long a read result stays fresh.
const DefaultTTL = 5 * time.Minute

const (
	KeyCases       = "cases"
	KeyProceedings = "proceedings"
	KeyBranches    = "branches"
	KeyDashboard   = "dashboard"
)

func CaseKey(firID string) string { return "case:" + firID }

func ProceedingsKey(firID string) string { return "proceedings:" + firID }

func DraftKey(firID string) string { return "draft:" + firID }

type entry struct {
	data     any
	storedAt time.Time
}

type Store struct {
	TTL time.Duration
	Now func() time.Time
	Log *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]entry
}

func New(ttl time.Duration, log *zap.SugaredLogger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{TTL: ttl, Now: time.Now, Log: log, entries: map[string]entry{}}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Get returns the cached value for key. An entry whose age has reached the TTL
// is a miss and is evicted.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		s.Log.Debugw("cache miss", "key", key)
		return nil, false
	}
	if s.now().Sub(e.storedAt) >= s.TTL {
		delete(s.entries, key)
		s.Log.Debugw("cache expired", "key", key)
		return nil, false
	}
	s.Log.Debugw("cache hit", "key", key)
	return e.data, true
}

func (s *Store) Set(key string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = map[string]entry{}
	}
	s.entries[key] = entry{data: data, storedAt: s.now()}
}

func (s *Store) Invalidate(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	s.Log.Debugw("cache invalidated", "keys", keys)
}

func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]entry{}
	s.Log.Debugw("cache cleared")
}

// Len counts stored entries, including ones that have expired but not yet been read.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Lookup is Get with a type assertion; a value of another type is a miss.
func Lookup[T any](s *Store, key string) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
