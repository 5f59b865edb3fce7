// Package cache provides a TTL cache over three interchangeable backends:
// in-process memory, a persistent store, and a session-scoped store.
//
// All backends share the [Backend] contract. Backend operations never fail
// from the caller's point of view: store errors and corrupt payloads become
// misses or dropped writes and are reported to an [Observer] as
// [EventStorageFault].
//
// # Cache
//
// [New] builds the cache service. It always owns a [Memory] backend;
// persistent and session backends are attached with [WithBackend]:
//
//	c := cache.New(
//	    cache.WithBackend(cache.NewPersistent(cache.NewRedisKV(client, cache.WithPrefix("journal")))),
//	    cache.WithBackend(cache.NewSession(cache.NewMapKV())),
//	    cache.WithObserver(cache.LogObserver(logger)),
//	)
//
//	err := cache.Set(ctx, c, "fetch:/api/articles", articles,
//	    cache.WithTTL(10*time.Minute),
//	    cache.InBackend(cache.KindPersistent),
//	    cache.WithCompression(),
//	    cache.WithTags("articles"),
//	)
//
//	articles, ok := cache.Get[[]Article](ctx, c, "fetch:/api/articles",
//	    cache.InBackend(cache.KindPersistent),
//	)
//
// TTL semantics:
//   - No [WithTTL] option: the cache default TTL (5 minutes by default)
//   - Positive duration: the entry expires after this duration
//   - Zero or negative: "never cache", Set is a no-op
//
// An entry older than its TTL is treated as absent on read and deleted,
// even if the backend has not swept it yet.
//
// # Dependency Tags
//
// Entries written with [WithTags] are recorded in an in-memory side index.
// [Cache.InvalidateByTag] deletes every entry carrying the tag without the
// caller knowing the keys:
//
//	c.InvalidateByTag(ctx, "articles")
//
// # Backends
//
// [NewMemory] keeps entries in a map with optional LRU bounding
// ([WithMaxEntries]). [NewPersistent] and [NewSession] adapt a [KV] driver:
//
//   - [RedisKV]: Redis via [github.com/redis/go-redis/v9]
//   - [PostgresKV]: a PostgreSQL table via [github.com/jackc/pgx/v5]
//   - [S3KV]: S3-compatible object storage via [github.com/aws/aws-sdk-go-v2/service/s3]
//   - [MapKV]: an in-process map for single-instance deployments and tests
//
// Session entries live under the [Scope] carried by the context:
//
//	ctx = cache.WithScope(ctx, cache.Scope{ID: sessionID, ExpiresAt: expiresAt})
//
// Without a live scope the session backend reads as empty and drops writes.
// Native expiry in the store never outlives the scope.
//
// # Compression
//
// With [WithCompression], payloads larger than the threshold (1 KB by
// default, see [WithCompressThreshold]) are gzipped and stored as base64
// text. Decoding is transparent.
//
// # Errors
//
// [Set] returns an error only when the value cannot be encoded
// ([ErrMarshal], [ErrCompress]). KV drivers return [ErrNotFound] for
// missing keys.
package cache
