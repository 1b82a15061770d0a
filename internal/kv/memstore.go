package kv

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store with TTL support. It backs unit tests and
// offline development; expiry is enforced lazily on read, which also makes it
// a faithful stand-in for "index says present, fetch says absent" scenarios.
type MemStore struct {
	mu     sync.Mutex
	values map[string]memEntry
	lists  map[string][]string
	now    func() time.Time
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		values: make(map[string]memEntry),
		lists:  make(map[string][]string),
		now:    time.Now,
	}
}

// SetClock overrides the time source, letting tests advance past TTLs.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemStore) get(key string) (memEntry, bool) {
	e, ok := s.values[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.values, key)
		return memEntry{}, false
	}
	return e, true
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		return "", ErrNil
	}
	return e.value, nil
}

// SetEX implements Store.
func (s *MemStore) SetEX(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.values[key] = e
	return nil
}

// Expire implements Store.
func (s *MemStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.get(key); ok {
		e.expiresAt = s.now().Add(ttl)
		s.values[key] = e
	}
	return nil
}

// Del implements Store.
func (s *MemStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
		delete(s.lists, k)
	}
	return nil
}

// LRange implements Store.
func (s *MemStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

// RPush implements Store.
func (s *MemStore) RPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], values...)
	return nil
}

// LRem implements Store.
func (s *MemStore) LRem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	s.lists[key] = out
	return nil
}

// LPos implements Store.
func (s *MemStore) LPos(_ context.Context, key, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.lists[key] {
		if v == value {
			return int64(i), nil
		}
	}
	return 0, ErrNil
}

// Ping implements Store.
func (s *MemStore) Ping(context.Context) error { return nil }
