// Package identity defines the credential store model: accounts, their role
// variants, and the security-relevant state (lockout, bans, soft deletion)
// that gates authentication.
//
// # Role variants
//
// A role is a closed set of three variants. Each variant is a [Profile]
// carrying only its own fields, built through [NewProfile] which enforces the
// role-specific requirements (writers must have a pen name).
//
// # What this package must NOT do
//
//   - Hash or compare secrets (the engine hashes before calling [Store.Create]).
//   - Issue or inspect tokens.
//   - Decide lockout policy; it only persists counters and deadlines it is given.
package identity
