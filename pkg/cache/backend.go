package cache

import "context"

// Backend is a physical store behind the cache.
//
// Operations never fail from the caller's point of view: implementations
// convert store errors into misses or dropped writes and report them
// through the Observer they were given.
type Backend interface {
	// Kind identifies which of the three stores this backend implements.
	Kind() Kind

	// Get returns the raw entry for key. Expiration is not checked here.
	Get(ctx context.Context, key string) (Entry, bool)

	// Set stores e under key, replacing any previous entry.
	Set(ctx context.Context, key string, e Entry)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string)

	// Clear removes every entry owned by this backend.
	Clear(ctx context.Context)

	// Keys lists stored keys that start with prefix.
	Keys(ctx context.Context, prefix string) []string
}

// observable is implemented by backends that report store faults.
type observable interface {
	setObserver(o Observer)
}
