package cache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrNotFound is returned by KV drivers when a key does not exist or has expired.
	ErrNotFound = errors.New("cache: entry not found")

	// ErrMarshal is returned when value serialization fails.
	ErrMarshal = errors.New("cache: failed to marshal value")

	// ErrUnmarshal is returned when value deserialization fails.
	ErrUnmarshal = errors.New("cache: failed to unmarshal value")

	// ErrCompress is returned when a payload cannot be compressed.
	ErrCompress = errors.New("cache: failed to compress value")

	// ErrDecompress is returned when a compressed payload cannot be restored.
	ErrDecompress = errors.New("cache: failed to decompress value")

	// ErrUnknownKind is returned when a backend kind string is not recognized.
	ErrUnknownKind = errors.New("cache: unknown backend kind")

	// ErrNoBackend is reported when an operation targets a backend that was not attached.
	ErrNoBackend = errors.New("cache: backend not configured")

	// ErrInvalidS3Config is returned when the S3 driver configuration is incomplete.
	ErrInvalidS3Config = errors.New("cache: invalid s3 configuration")
)
