package cache

import (
	"fmt"
	"strings"
)

// Kind identifies one of the physical stores behind the cache.
type Kind string

const (
	// KindMemory is the in-process store. It never survives a restart.
	KindMemory Kind = "memory"
	// KindPersistent is a long-lived durable store (Redis, Postgres, S3).
	KindPersistent Kind = "persistent"
	// KindSession is a store bound to the lifetime of a session scope.
	KindSession Kind = "session"
)

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindMemory:
		return KindMemory, nil
	case KindPersistent:
		return KindPersistent, nil
	case KindSession:
		return KindSession, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) String() string {
	return string(k)
}
