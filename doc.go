// Package inkauth is the authentication and session-security core of a
// social publishing backend: credential issuance, the access/refresh token
// lifecycle, blacklisting, password reset and email verification tokens,
// account lockout, bans, and the request gate that authenticates every
// protected call.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// inkauth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types ([AuthResult], [Principal], [SessionInfo]). Identities live
// behind [identity.Store] (PostgreSQL or in-memory), persisted tokens in the
// Redis [ledger.Store], and token signing in [jwt.Manager]. Rate limiting,
// audit dispatch and metrics live under internal/.
//
// # What this package must NOT do
//
//   - Store, log, or audit raw passwords or raw tokens.
//   - Reveal whether an email is registered through login or reset results.
//   - Keep rate-limit or lockout counters in process memory.
//   - Import any sub-package that re-imports inkauth (no import cycles).
//
// # Performance contract
//
// Authenticate is the hot path: one Redis EXISTS and one identity lookup.
// Login, Register and password operations are dominated by one bounded
// password hash.
package inkauth
