package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// kindOrder is the fixed iteration order over backends.
var kindOrder = []Kind{KindMemory, KindPersistent, KindSession}

// Cache is a TTL cache over up to three backends.
//
// It always owns a memory backend; persistent and session backends are
// attached with WithBackend. Expiration is checked on every read, so an
// expired entry is never returned even if its backend still holds it.
// Backend failures never reach the caller.
type Cache struct {
	backends    map[Kind]Backend
	tags        *tagIndex
	observer    Observer
	now         func() time.Time
	defaultTTL  time.Duration
	defaultKind Kind
	threshold   int
}

// New creates a cache service.
//
// Example:
//
//	c := cache.New(
//	    cache.WithBackend(cache.NewPersistent(cache.NewRedisKV(client))),
//	    cache.WithBackend(cache.NewSession(cache.NewMapKV())),
//	    cache.WithObserver(cache.LogObserver(logger)),
//	)
func New(opts ...Option) *Cache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	c := &Cache{
		backends:    make(map[Kind]Backend, len(kindOrder)),
		tags:        newTagIndex(),
		observer:    o.observer,
		now:         o.now,
		defaultTTL:  o.defaultTTL,
		defaultKind: o.defaultKind,
		threshold:   o.threshold,
	}

	c.backends[KindMemory] = NewMemory(o.memoryOpts...)
	for _, b := range o.backends {
		c.backends[b.Kind()] = b
	}

	for _, b := range c.backends {
		if ob, ok := b.(observable); ok {
			ob.setObserver(c.observer)
		}
	}
	if m, ok := c.backends[KindMemory].(*Memory); ok {
		m.SetEvictCallback(func(key string, _ Entry) {
			c.tags.remove(tagRef{kind: KindMemory, key: key})
		})
	}

	return c
}

// Get returns the value stored under key, or false if it is absent,
// expired, or cannot be decoded into T. Expired and undecodable entries
// are deleted.
func Get[T any](ctx context.Context, c *Cache, key string, opts ...EntryOption) (T, bool) {
	var zero T

	o := c.entryOptions(opts)
	e, ok := c.lookup(ctx, o.kind, key)
	if !ok {
		return zero, false
	}

	v, err := DecodeValue[T](e)
	if err != nil {
		c.observe(ctx, Event{Type: EventStorageFault, Backend: o.kind, Op: "decode", Key: key, Err: err})
		c.remove(ctx, o.kind, key)
		return zero, false
	}

	c.observe(ctx, Event{Type: EventHit, Backend: o.kind, Key: key})
	return v, true
}

// Set stores value under key. A TTL of zero or less makes it a no-op.
// The only error is a value that cannot be encoded; backend failures are
// reported to the observer.
func Set[T any](ctx context.Context, c *Cache, key string, value T, opts ...EntryOption) error {
	o := c.entryOptions(opts)
	if o.ttl <= 0 {
		return nil
	}

	e, err := Encode(value, o.ttl, o.compress, c.threshold, c.now())
	if err != nil {
		return err
	}
	e.Tags = slices.Clone(o.tags)

	c.SetEntry(ctx, key, e, InBackend(o.kind))
	return nil
}

// GetEntry returns the raw entry under key if it is still valid.
func (c *Cache) GetEntry(ctx context.Context, key string, opts ...EntryOption) (Entry, bool) {
	o := c.entryOptions(opts)
	e, ok := c.lookup(ctx, o.kind, key)
	if ok {
		c.observe(ctx, Event{Type: EventHit, Backend: o.kind, Key: key})
	}
	return e, ok
}

// SetEntry writes an already encoded entry and records its tags.
func (c *Cache) SetEntry(ctx context.Context, key string, e Entry, opts ...EntryOption) {
	o := c.entryOptions(opts)
	b, ok := c.backend(ctx, o.kind, key)
	if !ok || e.Expired(c.now()) {
		return
	}

	b.Set(ctx, key, e)
	c.tags.set(c.ref(ctx, o.kind, key), e.Tags)
	c.observe(ctx, Event{Type: EventSet, Backend: o.kind, Key: key})
}

// Has reports whether a valid entry exists under key.
func (c *Cache) Has(ctx context.Context, key string, opts ...EntryOption) bool {
	o := c.entryOptions(opts)
	_, ok := c.lookup(ctx, o.kind, key)
	return ok
}

// Delete removes key from every backend.
func (c *Cache) Delete(ctx context.Context, key string) {
	for _, kind := range c.Kinds() {
		c.remove(ctx, kind, key)
	}
	c.observe(ctx, Event{Type: EventDelete, Key: key})
}

// DeleteFrom removes key from one backend.
func (c *Cache) DeleteFrom(ctx context.Context, kind Kind, key string) {
	if _, ok := c.backend(ctx, kind, key); !ok {
		return
	}
	c.remove(ctx, kind, key)
	c.observe(ctx, Event{Type: EventDelete, Backend: kind, Key: key})
}

// Clear drops every entry of one backend. For the session backend only the
// scope carried by ctx is cleared.
func (c *Cache) Clear(ctx context.Context, kind Kind) {
	b, ok := c.backend(ctx, kind, "")
	if !ok {
		return
	}

	b.Clear(ctx)

	scope := c.scopeID(ctx, kind)
	c.tags.drop(func(r tagRef) bool {
		return r.kind == kind && (kind != KindSession || r.scope == scope)
	})
	c.observe(ctx, Event{Type: EventCleared, Backend: kind})
}

// InvalidateByTag deletes every entry written with tag and returns how many
// of them were still stored.
func (c *Cache) InvalidateByTag(ctx context.Context, tag string) int {
	removed := 0
	for _, ref := range c.tags.take(tag) {
		b, ok := c.backends[ref.kind]
		if !ok {
			continue
		}
		bctx := refContext(ctx, ref)
		if _, ok := b.Get(bctx, ref.key); ok {
			removed++
		}
		b.Delete(bctx, ref.key)
	}

	c.observe(ctx, Event{Type: EventInvalidated, Key: tag, Count: removed})
	return removed
}

// PurgeExpired deletes expired entries from every backend and asks drivers
// that support it to prune physically expired records. Keys are listed in
// the session scope carried by ctx; tagged session entries of other scopes
// are swept through the tag index. Index records of entries a store expired
// on its own are dropped. It returns the number of entries removed.
func (c *Cache) PurgeExpired(ctx context.Context) int {
	now := c.now()
	total := 0

	for _, kind := range c.Kinds() {
		b := c.backends[kind]
		for _, key := range b.Keys(ctx, "") {
			e, ok := b.Get(ctx, key)
			if !ok || !e.Expired(now) {
				continue
			}
			b.Delete(ctx, key)
			c.tags.remove(c.ref(ctx, kind, key))
			total++
		}

		if p, ok := b.(interface{ PruneExpired(context.Context) int }); ok {
			total += p.PruneExpired(ctx)
		}

		// The memory backend reports evictions, so its index never goes stale.
		if kind != KindMemory {
			total += c.purgeRefs(ctx, kind, now)
		}
	}

	c.observe(ctx, Event{Type: EventSweep, Count: total})
	return total
}

// purgeRefs resolves every indexed entry of kind, dropping records whose
// entry is gone and deleting entries that expired.
func (c *Cache) purgeRefs(ctx context.Context, kind Kind, now time.Time) int {
	b := c.backends[kind]
	removed := 0
	for _, ref := range c.tags.refs(kind) {
		bctx := refContext(ctx, ref)
		e, ok := b.Get(bctx, ref.key)
		if ok && !e.Expired(now) {
			continue
		}
		if ok {
			b.Delete(bctx, ref.key)
			removed++
		}
		c.tags.remove(ref)
	}
	return removed
}

// refContext scopes ctx to the session an index record belongs to.
func refContext(ctx context.Context, ref tagRef) context.Context {
	if ref.scope == "" {
		return ctx
	}
	return WithScope(ctx, Scope{ID: ref.scope})
}

// Target returns the backend kind a call with opts reads and writes.
func (c *Cache) Target(opts ...EntryOption) Kind {
	return c.entryOptions(opts).kind
}

// Backend returns the backend of the given kind.
func (c *Cache) Backend(kind Kind) (Backend, bool) {
	b, ok := c.backends[kind]
	return b, ok
}

// Kinds lists the attached backend kinds in a fixed order.
func (c *Cache) Kinds() []Kind {
	kinds := make([]Kind, 0, len(c.backends))
	for _, k := range kindOrder {
		if _, ok := c.backends[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Observer returns the observer events are reported to.
func (c *Cache) Observer() Observer {
	return c.observer
}

// Ping checks every backend whose store can verify connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	var errs []error
	for _, kind := range c.Kinds() {
		if p, ok := c.backends[kind].(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("cache: %s backend: %w", kind, err))
			}
		}
	}
	return errors.Join(errs...)
}

// lookup reads key and enforces expiration.
func (c *Cache) lookup(ctx context.Context, kind Kind, key string) (Entry, bool) {
	b, ok := c.backend(ctx, kind, key)
	if !ok {
		return Entry{}, false
	}

	e, ok := b.Get(ctx, key)
	if !ok {
		c.observe(ctx, Event{Type: EventMiss, Backend: kind, Key: key})
		return Entry{}, false
	}

	if e.Expired(c.now()) {
		c.remove(ctx, kind, key)
		c.observe(ctx, Event{Type: EventExpired, Backend: kind, Key: key})
		return Entry{}, false
	}
	return e, true
}

func (c *Cache) remove(ctx context.Context, kind Kind, key string) {
	b, ok := c.backends[kind]
	if !ok {
		return
	}
	b.Delete(ctx, key)
	c.tags.remove(c.ref(ctx, kind, key))
}

func (c *Cache) backend(ctx context.Context, kind Kind, key string) (Backend, bool) {
	b, ok := c.backends[kind]
	if !ok {
		c.observe(ctx, Event{Type: EventStorageFault, Backend: kind, Key: key, Op: "resolve", Err: ErrNoBackend})
	}
	return b, ok
}

func (c *Cache) ref(ctx context.Context, kind Kind, key string) tagRef {
	return tagRef{kind: kind, scope: c.scopeID(ctx, kind), key: key}
}

func (c *Cache) scopeID(ctx context.Context, kind Kind) string {
	if kind != KindSession {
		return ""
	}
	s, _ := ScopeFromContext(ctx)
	return s.ID
}

func (c *Cache) entryOptions(opts []EntryOption) entryOptions {
	o := entryOptions{kind: c.defaultKind}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.ttlSet {
		o.ttl = c.defaultTTL
	}
	return o
}

func (c *Cache) observe(ctx context.Context, ev Event) {
	c.observer.Observe(ctx, ev)
}
