// accolade/pkg/cache/memory.go

package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     int
	expiresAt time.Time
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) lookup(key string) (int, bool) {
	e, ok := m.entries[key]
	if !ok {
		return 0, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		return 0, false
	}
	return e.value, true
}

func (m *Memory) store(key string, value int, ttl time.Duration) {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
}

func (m *Memory) Get(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.lookup(key); ok {
		return v, nil
	}
	return 0, ErrNotFound
}

func (m *Memory) Set(_ context.Context, key string, value int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(key, value, ttl)
	return nil
}

func (m *Memory) GetOrCreate(ctx context.Context, key string, ttl time.Duration, seed SeedFunc) (int, error) {
	if v, err := m.Get(ctx, key); err == nil {
		return v, nil
	}
	value, err := seed()
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.lookup(key); ok {
		return v, nil
	}
	m.store(key, value, ttl)
	return value, nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Overlay reads through to a base cache and keeps every write local, so
// dry runs see real counters without changing them.
type Overlay struct {
	base  Cache
	local *Memory
}

func NewOverlay(base Cache) *Overlay {
	return &Overlay{base: base, local: NewMemory()}
}

func (o *Overlay) Get(ctx context.Context, key string) (int, error) {
	if v, err := o.local.Get(ctx, key); err == nil {
		return v, nil
	}
	return o.base.Get(ctx, key)
}

func (o *Overlay) Set(ctx context.Context, key string, value int, ttl time.Duration) error {
	return o.local.Set(ctx, key, value, ttl)
}

func (o *Overlay) GetOrCreate(ctx context.Context, key string, ttl time.Duration, seed SeedFunc) (int, error) {
	v, err := o.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	return o.local.GetOrCreate(ctx, key, ttl, seed)
}

// Close leaves the base cache open.
func (o *Overlay) Close() error {
	return o.local.Close()
}
