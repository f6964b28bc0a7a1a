package bucket

import (
	"context"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements Store in process memory. It backs single-node
// deployments without Redis and the package's own tests. Each bucket is a
// go-cache instance with expiration disabled: entries never age out, they
// only disappear through whole-bucket pruning.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]*gocache.Cache
}

// NewMemoryStore creates an empty in-memory bucket store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*gocache.Cache),
	}
}

// Open creates the named bucket if it does not exist yet.
func (s *MemoryStore) Open(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buckets[name]; !ok {
		s.buckets[name] = gocache.New(gocache.NoExpiration, 0)
	}
	return nil
}

// Get retrieves an entry. Returns (nil, nil) on miss, including when the
// bucket itself does not exist.
func (s *MemoryStore) Get(_ context.Context, name, key string) (*Entry, error) {
	s.mu.RLock()
	c, ok := s.buckets[name]
	s.mu.RUnlock()
	if !ok {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, nil
	}

	v, found := c.Get(key)
	if !found {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, nil
	}

	CacheHits.WithLabelValues("memory").Inc()
	return v.(*Entry), nil
}

// Put stores an entry, replacing any prior entry for the key. The bucket is
// created implicitly if it was never opened.
func (s *MemoryStore) Put(ctx context.Context, name, key string, entry *Entry) error {
	s.mu.RLock()
	c, ok := s.buckets[name]
	s.mu.RUnlock()
	if !ok {
		if err := s.Open(ctx, name); err != nil {
			return err
		}
		s.mu.RLock()
		c = s.buckets[name]
		s.mu.RUnlock()
	}

	c.Set(key, entry, gocache.NoExpiration)
	CacheWrittenBytes.WithLabelValues("memory").Add(float64(len(entry.Body)))
	return nil
}

// DeleteExcept removes every bucket not named in keep.
func (s *MemoryStore) DeleteExcept(_ context.Context, keep map[string]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name := range s.buckets {
		if _, ok := keep[name]; ok {
			continue
		}
		delete(s.buckets, name)
		BucketsDeleted.Inc()
	}
	return nil
}

// Names enumerates all existing bucket names.
func (s *MemoryStore) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	return names, nil
}
