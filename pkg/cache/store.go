package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// StoreOption configures a KV-backed backend.
type StoreOption func(*storeOptions)

type storeOptions struct {
	now       func() time.Time
	namespace string
}

// WithNamespace overrides the key namespace the backend writes under.
// Defaults: "persistent" for NewPersistent, "session" for NewSession.
func WithNamespace(ns string) StoreOption {
	return func(o *storeOptions) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

// WithStoreClock sets the time source used for native TTL and scope checks.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// KVBackend adapts a KV driver to the Backend contract. Entries are
// serialized to JSON; store errors become misses or dropped writes and are
// reported as EventStorageFault.
type KVBackend struct {
	kv       KV
	observer Observer
	now      func() time.Time
	kind     Kind
	ns       string
	scoped   bool
}

// NewPersistent creates the long-lived backend over kv.
func NewPersistent(kv KV, opts ...StoreOption) *KVBackend {
	return newKVBackend(kv, KindPersistent, false, opts...)
}

// NewSession creates the session-scoped backend over kv. Keys live under
// the Scope carried by the context (see WithScope); without a live scope
// every operation is a miss or a no-op. Native expiry never outlives the
// scope.
func NewSession(kv KV, opts ...StoreOption) *KVBackend {
	return newKVBackend(kv, KindSession, true, opts...)
}

func newKVBackend(kv KV, kind Kind, scoped bool, opts ...StoreOption) *KVBackend {
	o := &storeOptions{
		namespace: string(kind),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &KVBackend{
		kv:       kv,
		observer: NopObserver(),
		now:      o.now,
		kind:     kind,
		ns:       o.namespace,
		scoped:   scoped,
	}
}

// Kind returns the backend kind.
func (b *KVBackend) Kind() Kind {
	return b.kind
}

// Get loads and decodes the entry for key. Corrupt payloads are deleted and
// reported as a miss.
func (b *KVBackend) Get(ctx context.Context, key string) (Entry, bool) {
	base, ok := b.base(ctx)
	if !ok {
		return Entry{}, false
	}

	raw, err := b.kv.Get(ctx, base+key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.fault(ctx, "get", key, err)
		}
		return Entry{}, false
	}

	e, ok := UnmarshalEntry(raw)
	if !ok {
		b.fault(ctx, "decode", key, ErrUnmarshal)
		if err := b.kv.Delete(ctx, base+key); err != nil {
			b.fault(ctx, "delete", key, err)
		}
		return Entry{}, false
	}
	return e, true
}

// Set serializes e and writes it with a native TTL matching the entry's
// remaining lifetime, capped by the session scope for session backends.
func (b *KVBackend) Set(ctx context.Context, key string, e Entry) {
	base, ok := b.base(ctx)
	if !ok {
		return
	}

	now := b.now()
	ttl := e.Remaining(now)
	if b.scoped {
		if s, _ := ScopeFromContext(ctx); !s.ExpiresAt.IsZero() {
			ttl = min(ttl, s.ExpiresAt.Sub(now))
		}
	}
	if ttl <= 0 {
		return
	}

	raw, err := MarshalEntry(e)
	if err != nil {
		b.fault(ctx, "encode", key, err)
		return
	}
	if err := b.kv.Set(ctx, base+key, raw, ttl); err != nil {
		b.fault(ctx, "set", key, err)
	}
}

// Delete removes key.
func (b *KVBackend) Delete(ctx context.Context, key string) {
	base, ok := b.base(ctx)
	if !ok {
		return
	}
	if err := b.kv.Delete(ctx, base+key); err != nil {
		b.fault(ctx, "delete", key, err)
	}
}

// Clear removes every key in the backend namespace. Session backends only
// clear the scope carried by ctx.
func (b *KVBackend) Clear(ctx context.Context) {
	base, ok := b.base(ctx)
	if !ok {
		return
	}

	keys, err := b.kv.Scan(ctx, base)
	if err != nil {
		b.fault(ctx, "clear", "", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := b.kv.Delete(ctx, keys...); err != nil {
		b.fault(ctx, "clear", "", err)
	}
}

// Keys lists keys starting with prefix, without the namespace.
func (b *KVBackend) Keys(ctx context.Context, prefix string) []string {
	base, ok := b.base(ctx)
	if !ok {
		return nil
	}

	keys, err := b.kv.Scan(ctx, base+prefix)
	if err != nil {
		b.fault(ctx, "keys", prefix, err)
		return nil
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if key, ok := strings.CutPrefix(k, base); ok {
			out = append(out, key)
		}
	}
	return out
}

// Ping checks the driver when it supports it.
func (b *KVBackend) Ping(ctx context.Context) error {
	if p, ok := b.kv.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// PruneExpired asks the driver to drop physically expired records.
// Drivers without native pruning report zero.
func (b *KVBackend) PruneExpired(ctx context.Context) int {
	p, ok := b.kv.(Pruner)
	if !ok {
		return 0
	}
	n, err := p.PruneExpired(ctx)
	if err != nil {
		b.fault(ctx, "prune", "", err)
		return 0
	}
	return n
}

func (b *KVBackend) setObserver(o Observer) {
	if o != nil {
		b.observer = o
	}
}

// base returns the physical key prefix for ctx.
// Session backends require a live scope in ctx.
func (b *KVBackend) base(ctx context.Context) (string, bool) {
	if !b.scoped {
		return b.ns + ":", true
	}

	s, ok := ScopeFromContext(ctx)
	if !ok || !s.Live(b.now()) {
		return "", false
	}
	return b.ns + ":" + s.ID + ":", true
}

func (b *KVBackend) fault(ctx context.Context, op, key string, err error) {
	b.observer.Observe(ctx, Event{
		Type:    EventStorageFault,
		Backend: b.kind,
		Op:      op,
		Key:     key,
		Err:     err,
	})
}

var (
	_ Backend    = (*KVBackend)(nil)
	_ observable = (*KVBackend)(nil)
)
