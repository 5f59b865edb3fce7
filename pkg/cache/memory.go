package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
)

// memoryItem is the list payload: the entry and the key it is stored under.
type memoryItem struct {
	key   string
	entry Entry
}

// Memory is the in-process backend.
//
// It uses a hash map for O(1) lookups and a doubly-linked list for O(1)
// LRU eviction ordering when a maximum entry count is configured. The most
// recently accessed entries are at the front of the list.
type Memory struct {
	items    map[string]*list.Element
	eviction *list.List
	opts     *memoryOptions
	onEvict  func(key string, e Entry)
	mu       sync.Mutex
}

// NewMemory creates an in-memory backend.
//
// Example:
//
//	m := cache.NewMemory(cache.WithMaxEntries(10000))
//	c := cache.New(cache.WithBackend(m))
func NewMemory(opts ...MemoryOption) *Memory {
	o := defaultMemoryOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Memory{
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		opts:     o,
	}
}

// Kind returns KindMemory.
func (m *Memory) Kind() Kind {
	return KindMemory
}

// SetEvictCallback sets a function called whenever an entry leaves the
// backend: LRU eviction, deletion, and clearing.
func (m *Memory) SetEvictCallback(fn func(key string, e Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = fn
}

// Get returns the entry stored under key and marks it as recently used.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return Entry{}, false
	}

	m.eviction.MoveToFront(elem)
	return elem.Value.(*memoryItem).entry, true
}

// Set stores e under key, evicting the least recently used entry if the
// backend is at capacity.
func (m *Memory) Set(_ context.Context, key string, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		elem.Value.(*memoryItem).entry = e
		m.eviction.MoveToFront(elem)
		return
	}

	if m.opts.maxEntries > 0 && len(m.items) >= m.opts.maxEntries {
		m.evictOldest()
	}

	elem := m.eviction.PushFront(&memoryItem{key: key, entry: e})
	m.items[key] = elem
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
}

// Clear drops every entry immediately.
func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.onEvict != nil {
		for _, elem := range m.items {
			item := elem.Value.(*memoryItem)
			m.onEvict(item.key, item.entry)
		}
	}

	m.items = make(map[string]*list.Element)
	m.eviction.Init()
}

// Keys lists keys starting with prefix, most recently used first.
func (m *Memory) Keys(_ context.Context, prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.items))
	for elem := m.eviction.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*memoryItem)
		if strings.HasPrefix(item.key, prefix) {
			keys = append(keys, item.key)
		}
	}
	return keys
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// evictOldest removes the least recently used entry.
// Caller must hold the mutex.
func (m *Memory) evictOldest() {
	if elem := m.eviction.Back(); elem != nil {
		m.removeElement(elem)
	}
}

// removeElement removes a specific element and triggers the eviction callback.
// Caller must hold the mutex.
func (m *Memory) removeElement(elem *list.Element) {
	m.eviction.Remove(elem)
	item := elem.Value.(*memoryItem)
	delete(m.items, item.key)

	if m.onEvict != nil {
		m.onEvict(item.key, item.entry)
	}
}

var _ Backend = (*Memory)(nil)
