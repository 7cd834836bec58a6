// Package session provides a client-resident session manager for
// applications that authenticate against a remote token-issuing identity
// service: it acquires, persists, validates, and invalidates a bearer
// credential, exposes the resolved identity, and feeds the route guard that
// gates protected views.
//
// Session lifecycle:
//   - Manager owns the authoritative session state (token, identity, status,
//     last error). Bootstrap loads a persisted credential and reconciles it
//     with the identity service; Login exchanges credentials for a token;
//     RefreshIdentity re-resolves the profile; Logout tears everything down.
//     Any identity-fetch failure is treated as proof the credential is no
//     longer valid and triggers logout-equivalent cleanup (fail closed).
//   - Manager never navigates. On invalidation it emits a session.invalidated
//     activity event and calls registered invalidation listeners so the
//     navigation layer can redirect to the login surface.
//
// Credential stores:
//   - CredentialStore is a synchronous, origin-scoped token store. MemoryStore
//     is the non-durable fallback, FileStore persists one file per origin, and
//     BunStore keeps the credential in SQLite via Bun. Stores never fail their
//     callers; when the backing medium is unavailable they degrade to
//     in-memory behavior and the session is simply lost on restart.
//
// Route guarding:
//   - middleware/sessionware wraps go-router handlers. It renders a pending
//     interstitial until the session settles, redirects anonymous requests to
//     the login surface carrying the original path as a return target, and
//     lets configured public routes through untouched.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter describing bootstrap,
//     login, invalidation, and logout events. Sinks run best-effort (errors
//     are logged) so you can forward to a database or queue without blocking
//     session transitions.
package session
