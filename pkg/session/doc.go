// Package session ties cached data to a visitor session.
//
// A [Session] owns a cache scope: placing it in the context with
// [NewContext] routes session-backend reads and writes into its namespace,
// and the backend caps every entry's lifetime at the session's expiry.
//
// [Loader] caches a per-session profile under "profile:{sessionID}" using
// the network-first strategy, so a profile stays available while the
// profile service is down:
//
//	profiles := session.NewLoader(r, func(ctx context.Context, s *session.Session) (Profile, error) {
//		return api.Profile(ctx, s.ID)
//	})
//	ctx = session.NewContext(ctx, sess)
//	p, err := profiles.Load(ctx)
//
// [CacheStore] keeps the sessions themselves in the persistent backend.
// Deleting a session also clears everything cached in its scope.
package session
