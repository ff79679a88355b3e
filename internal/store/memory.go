package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// memoryStore 是进程内实现，过期条目在访问时惰性清理。
type memoryStore struct {
	mu     sync.Mutex
	data   map[Namespace]map[string]memoryEntry
	now    func() time.Time
	closed bool
}

// NewMemoryStore 构建进程内 Store，适合测试与单进程开发环境。
func NewMemoryStore() Store {
	return newMemoryStore(time.Now)
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{
		data: make(map[Namespace]map[string]memoryEntry),
		now:  now,
	}
}

func (s *memoryStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(ns, key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

func (s *memoryStore) Set(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(ns, key, value, ttl)
	return nil
}

func (s *memoryStore) SetNX(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(ns, key); ok {
		return false, nil
	}
	s.put(ns, key, value, ttl)
	return true, nil
}

func (s *memoryStore) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.lookup(ns, key)
	return ok, nil
}

func (s *memoryStore) Delete(ctx context.Context, ns Namespace, key string) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(ns, key); !ok {
		return false, nil
	}
	delete(s.data[ns], key)
	return true, nil
}

func (s *memoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) check(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return nil
}

// lookup 需在持有 s.mu 时调用，顺带清理过期条目。
func (s *memoryStore) lookup(ns Namespace, key string) (memoryEntry, bool) {
	bucket := s.data[ns]
	if bucket == nil {
		return memoryEntry{}, false
	}
	entry, ok := bucket[key]
	if !ok {
		return memoryEntry{}, false
	}
	if entry.expired(s.now()) {
		delete(bucket, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *memoryStore) put(ns Namespace, key string, value []byte, ttl time.Duration) {
	bucket := s.data[ns]
	if bucket == nil {
		bucket = make(map[string]memoryEntry)
		s.data[ns] = bucket
	}
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	bucket[key] = entry
}
