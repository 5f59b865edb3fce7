// Package retrieve layers retrieval strategies over a [cache.Cache] and a
// caller-supplied remote fetch.
//
//   - [CacheFirst]: serve the cache, fetch on a miss.
//   - [NetworkFirst]: fetch first, fall back to the cache on failure.
//   - [StaleWhileRevalidate]: serve the cache and refresh it in the background.
//
// Remote fetches go through [resilient.Call] with the Retriever's policy.
// Concurrent misses for the same key share one fetch. Background
// revalidations are limited to one per key, detach from the caller's
// cancellation, and report failures to the cache observer only.
//
//	r := retrieve.New(c, retrieve.WithPolicy(resilient.DefaultPolicy()))
//
//	articles, err := retrieve.StaleWhileRevalidate(ctx, r, "fetch:/api/articles",
//	    func(ctx context.Context) ([]Article, error) { return api.Articles(ctx) },
//	    cache.WithTTL(5*time.Minute), cache.InBackend(cache.KindPersistent),
//	)
//
// Call [Retriever.Wait] during shutdown to let running revalidations finish.
package retrieve
