// Package maintenance keeps a [cache.Cache] tidy in the background.
//
// A [Scheduler] runs two tasks on [github.com/robfig/cron/v3]:
//
//   - memory clear: drops the whole memory backend (every 30 minutes by default)
//   - expiry sweep: purges expired entries from every backend (every 5 minutes by default)
//
// A failure or panic in one run is logged and reported as
// [cache.EventSweepFailed]; the next run happens as scheduled.
//
//	s, err := maintenance.New(c,
//	    maintenance.WithMemoryClearInterval(30*time.Minute),
//	    maintenance.WithSignals(maintenance.NewRedisSignals(client, "")),
//	    maintenance.WithLogger(log),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//	defer s.Stop(context.Background())
//
// Start and Stop are idempotent. Stop halts every timer and the signal
// subscription before it returns.
//
// # Signals
//
// [RedisSignals] subscribes to a Redis Pub/Sub channel (default
// "stash:cache:signals") so that a mutation in one instance invalidates
// the same entries everywhere. Payloads are "tag:<tag>", "key:<key>", and
// "hidden". [LocalSignals] does the same inside one process.
package maintenance
