package modelcache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Backend is the distributed tier. Every operation may fail; the cache treats failures as a
// miss or a no-op.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key owned by this backend.
	Clear(ctx context.Context) error
	Close() error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryBackend is an in-process Backend with expiry. It stands in for Redis in tests.
type MemoryBackend struct {
	mu      sync.Mutex
	prefix  string
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Backend = &MemoryBackend{} // Compile-time check

// NewMemoryBackend creates an empty MemoryBackend owning keys with the given prefix.
func NewMemoryBackend(prefix string) *MemoryBackend {
	return &MemoryBackend{
		prefix:  prefix,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !b.now().Before(e.expires) {
		delete(b.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Backend. A zero ttl never expires.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = b.now().Add(ttl)
	}
	b.entries[key] = e
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Clear implements Backend.
func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.entries {
		if strings.HasPrefix(k, b.prefix) {
			delete(b.entries, k)
		}
	}
	return nil
}

// Close implements Backend.
func (b *MemoryBackend) Close() error { return nil }
