package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store. When full, a random entry is evicted to
// make room. It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	data       map[string]*entry
	maxEntries int

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries entries.
// A background goroutine sweeps expired entries every sweepEvery until Close.
func NewMemoryStore(maxEntries int, sweepEvery time.Duration) *MemoryStore {
	if maxEntries < 1 {
		maxEntries = 1
	}
	s := &MemoryStore{
		data:       make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.sweepLoop(sweepEvery)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()

	if !ok || !s.now().Before(e.expiresAt) {
		return nil, ErrMiss
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Map iteration order is random, so this drops an arbitrary entry.
	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxEntries {
		for k := range s.data {
			delete(s.data, k)
			break
		}
	}

	s.data[key] = &entry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close stops the sweeper. The stored data stays readable.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	for k, e := range s.data {
		if !now.Before(e.expiresAt) {
			delete(s.data, k)
		}
	}
	s.mu.Unlock()
}

func (s *MemoryStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}
