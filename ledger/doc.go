// Package ledger is the Redis-backed token ledger: the durable record of
// refresh, reset and verification tokens, plus the blacklist of revoked
// access tokens.
//
// # Storage layout
//
// Every key lives under a configurable prefix (default "tl"):
//
//	tl:t:<hash>      hash record of one persisted token
//	tl:s:<identity>  zset of active refresh hashes scored by last use (ms)
//	tl:i:<identity>  zset of every persisted hash scored by expiry (ms)
//	tl:b:<hash>      blacklist marker for a revoked access token
//
// Raw tokens never reach Redis; keys and members use the SHA-256 hex digest
// returned by [HashToken]. Revoked records are retained for a grace period so
// a replayed refresh token can still be recognized.
//
// # What this package must NOT do
//
//   - Sign, parse or otherwise interpret token contents.
//   - Decide revocation policy; callers choose the reason and the scope.
//   - Log raw token values.
package ledger
