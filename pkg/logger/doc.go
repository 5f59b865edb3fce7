// Package logger builds the service's slog logger.
//
// [New] returns a JSON or text logger at the configured level. Context
// extractors add request-scoped attributes to every record: the HTTP layer
// registers one for chi's request id, and [CacheKeyExtractor] adds the key
// stored with [WithCacheKey].
//
//	log, err := logger.New(cfg.Log, logger.CacheKeyExtractor())
//	if err != nil {
//		return err
//	}
//	log.InfoContext(logger.WithCacheKey(ctx, "fetch:/api/articles"), "refreshed")
//	// {"level":"INFO","msg":"refreshed","cache_key":"fetch:/api/articles"}
//
// When [SentryConfig.DSN] is set, warn and error records are forwarded to
// Sentry as well; errors create issues. Initialization failures fall back to
// local output only, so the same configuration works in development.
//
// Library packages default to [NewNope] and never log to the global logger.
package logger
