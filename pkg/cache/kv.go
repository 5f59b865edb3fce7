package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// KV is a durable string store used by the persistent and session backends.
// Drivers return errors; the backend adapters decide what to do with them.
type KV interface {
	// Get returns the stored bytes or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value. A positive ttl lets the store expire the key natively;
	// zero or negative means no native expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Scan lists keys starting with prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)
}

// Pinger is implemented by drivers that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Pruner is implemented by drivers whose expired records linger physically
// until removed.
type Pruner interface {
	PruneExpired(ctx context.Context) (int, error)
}

type mapKVItem struct {
	expiresAt time.Time // zero value = never expires
	value     []byte
}

// MapKV is an in-process KV driver. It backs the session store in
// single-instance deployments and stands in for real stores in tests.
type MapKV struct {
	items map[string]mapKVItem
	now   func() time.Time
	mu    sync.Mutex
}

// NewMapKV creates an empty in-process KV store.
// An optional clock replaces time.Now for native expiry.
func NewMapKV(clock ...func() time.Time) *MapKV {
	m := &MapKV{
		items: make(map[string]mapKVItem),
		now:   time.Now,
	}
	if len(clock) > 0 && clock[0] != nil {
		m.now = clock[0]
	}
	return m
}

// Get returns a copy of the stored value.
func (m *MapKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return nil, ErrNotFound
	}
	return slices.Clone(item.value), nil
}

// Set stores a copy of value.
func (m *MapKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := mapKVItem{value: slices.Clone(value)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

// Delete removes keys.
func (m *MapKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// Scan returns the live keys starting with prefix in lexical order.
func (m *MapKV) Scan(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	keys := make([]string, 0)
	for k, item := range m.items {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// PruneExpired drops expired items and returns how many were removed.
func (m *MapKV) PruneExpired(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, item := range m.items {
		if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (m *MapKV) Ping(context.Context) error {
	return nil
}

var (
	_ KV     = (*MapKV)(nil)
	_ Pinger = (*MapKV)(nil)
	_ Pruner = (*MapKV)(nil)
)
