// Package fetch is a cached JSON client for an upstream HTTP API.
//
// Responses are stored under "fetch:{path}" and served through one of the
// retrieval strategies, so callers get cached data while the upstream is
// slow or down:
//
//	c, err := fetch.New("https://journal.example.com", r,
//		fetch.WithStrategy(retrieve.StrategyNetworkFirst),
//		fetch.WithTTL(time.Minute),
//	)
//	articles, err := fetch.GetJSON[[]Article](ctx, c, "/api/articles",
//		cache.WithTags("articles"),
//	)
//
// Non-2xx responses become *resilient.StatusError. 408, 425, 429 and 5xx
// gateway statuses are retried; other statuses fail immediately.
package fetch
