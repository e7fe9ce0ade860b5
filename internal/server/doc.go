// Package server provides the HTTP surface of the sync service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method-qualified patterns.
//
// # API Surface
//
// [API] registers the JSON endpoints:
//
//	GET  /health                     → liveness probe
//	GET  /auth/{provider}/start      → redirect into the provider's authorize page
//	GET  /auth/{provider}/callback   → code exchange, connection status
//	GET  /auth/connections           → per-provider connection status
//	GET  /sync/profile               → the caller's sync profile
//	PUT  /sync/profile               → replace direction, likes behavior, mappings
//	PUT  /sync/schedule              → enable, change, or disable the cron schedule
//	POST /sync/run-now               → run a sync job (Idempotency-Key aware)
//	POST /sync/run                   → alias of run-now
//	GET  /sync/runs                  → recent run history
//	GET  /sync/runs/latest           → most recent run
//
// Callers are identified by the X-User-Id header or the tunesync_user cookie;
// unknown callers get a generated id set as a cookie, and user accounts are
// provisioned on first contact.
package server
