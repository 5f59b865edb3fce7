package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/stash/pkg/cache"
)

// Session is a visitor session. Its lifetime bounds every entry cached
// in the session backend on its behalf.
type Session struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	UserID *string `json:"user_id,omitempty"` // nil = anonymous session
	ID     string  `json:"id"`
}

// New creates an anonymous session with a random UUID that expires after lifetime.
func New(lifetime time.Duration) *Session {
	return NewAt(time.Now(), lifetime)
}

// NewAt is New with an explicit creation time.
func NewAt(now time.Time, lifetime time.Duration) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
	}
}

// IsAuthenticated returns true if the session has an associated user.
func (s *Session) IsAuthenticated() bool {
	return s.UserID != nil && *s.UserID != ""
}

// IsExpired reports whether the session has ended at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Remaining returns the lifetime left at now, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	return max(s.ExpiresAt.Sub(now), 0)
}

// Scope returns the cache scope for entries owned by this session.
func (s *Session) Scope() cache.Scope {
	return cache.Scope{ID: s.ID, ExpiresAt: s.ExpiresAt}
}

// ValidID reports whether id has the shape of a session id.
func ValidID(id string) bool {
	return uuid.Validate(id) == nil
}
