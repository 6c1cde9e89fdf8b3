// Package redisession implements a Redis-backed server-side session store with
// per-session mutual exclusion, TTL-based expiry, and session-fixation
// protection.
//
// A [Handler] drives one session lifecycle: Open connects to Redis, Read
// acquires the session's distributed lock and fetches the payload, Write
// persists it with a refreshed TTL, and Close releases every lock the handler
// holds along with the connection. Identifiers supplied by the client that
// have no backing record are never trusted; Validate detects them and
// Regenerate mints a replacement and overwrites the session cookie.
//
// # Concurrency contract
//
// One Handler belongs to exactly one request-handling execution. Handler
// methods are NOT safe for concurrent use; concurrency happens across
// independent handlers (possibly in different processes) contending for the
// same session through the shared Redis instance. Mutual exclusion is
// enforced with SET NX on a per-session lock key (see [lock.Manager]).
//
// # Architecture boundaries
//
//   - All Redis access goes through a redis.UniversalClient; expiry is
//     delegated entirely to Redis TTLs. GC never scans or deletes anything.
//   - Cookie issuance and session-ID generation are pluggable collaborators
//     ([CookieIssuer], [IDGenerator]); the package ships stdlib-backed
//     defaults but never talks to an http.Request directly.
//   - Missing records are a first-class state, not an error. Only a failed
//     connection, a rejected write, or an aborted lock acquisition surface
//     as errors.
package redisession
