// Package httpapi exposes the cache service over HTTP.
//
// Routes:
//
//	GET    /api/*                    cached upstream proxy (?strategy=, ?tag=)
//	GET    /cache/{key}              entry metadata and value (?backend=)
//	PUT    /cache/{key}              store a JSON body (?ttl=, ?backend=, ?tag=, ?compress=)
//	DELETE /cache/{key}              delete from every backend and broadcast
//	DELETE /cache?backend=kind       clear one backend
//	POST   /cache/invalidate/{tag}   invalidate a dependency tag and broadcast
//	POST   /maintenance/hidden       release the memory backend
//	POST   /maintenance/sweep        purge expired entries now
//	GET    /session/profile          the visitor's cached profile
//	DELETE /session/profile          drop the cached profile
//	GET    /health/live, /health/ready, /metrics
//
// Failed retrievals map to 504 when the upstream timed out, 503 when
// retries were exhausted and 502 on a fatal upstream error. The JSON error
// body carries the reason.
package httpapi
