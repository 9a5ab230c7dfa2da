// Package rate provides the Redis-backed fixed-window throttles used by the
// authentication flows.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit of a window. Key
// prefixes (under the configured namespace, default "rl"):
//   - li: login attempts per client IP
//   - rg: registrations per client IP
//   - pr: password-reset requests per email
//   - rf: refreshes per session
//
// Counters live in Redis so every instance of the service shares them.
//
// # What this package must NOT do
//
//   - Decide account lockout (the credential store owns that counter).
//   - Be imported outside the inkauth module.
package rate
