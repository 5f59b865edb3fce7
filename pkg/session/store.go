package session

import (
	"context"
	"time"

	"github.com/dmitrymomot/stash/pkg/cache"
)

// Store defines the interface for session persistence.
type Store interface {
	// Save persists s until it expires.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by its ID.
	// Returns ErrNotFound if the session doesn't exist or has expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session by its ID.
	Delete(ctx context.Context, id string) error
}

// KeyPrefix namespaces session records in the persistent backend.
const KeyPrefix = "session:"

// CacheStore keeps sessions in the cache's persistent backend under
// "session:{id}", each entry living exactly as long as its session.
type CacheStore struct {
	cache *cache.Cache
	now   func() time.Time
}

// NewCacheStore creates a Store over c. c must have a persistent backend.
func NewCacheStore(c *cache.Cache, clock ...func() time.Time) *CacheStore {
	now := time.Now
	if len(clock) > 0 && clock[0] != nil {
		now = clock[0]
	}
	return &CacheStore{cache: c, now: now}
}

// Save writes s. An already expired session is not stored.
func (st *CacheStore) Save(ctx context.Context, s *Session) error {
	ttl := s.Remaining(st.now())
	if ttl <= 0 {
		return ErrExpired
	}
	return cache.Set(ctx, st.cache, KeyPrefix+s.ID, s,
		cache.InBackend(cache.KindPersistent),
		cache.WithTTL(ttl),
	)
}

// Get loads the session with id.
func (st *CacheStore) Get(ctx context.Context, id string) (*Session, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	s, ok := cache.Get[*Session](ctx, st.cache, KeyPrefix+id, cache.InBackend(cache.KindPersistent))
	if !ok || s == nil {
		return nil, ErrNotFound
	}
	if s.IsExpired(st.now()) {
		st.cache.Delete(ctx, KeyPrefix+id)
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes the session record and everything cached in its scope.
func (st *CacheStore) Delete(ctx context.Context, id string) error {
	st.cache.Delete(ctx, KeyPrefix+id)
	if _, ok := st.cache.Backend(cache.KindSession); ok {
		st.cache.Clear(cache.WithScope(ctx, cache.Scope{ID: id}), cache.KindSession)
	}
	return nil
}
