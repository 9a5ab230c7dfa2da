// Package password hashes and verifies account secrets.
//
// New hashes use bcrypt (cost 12 by default). Argon2id hashes in PHC format
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// are also understood, and [Multi] dispatches verification on the hash prefix
// so stored hashes of either algorithm keep working. [Pool] bounds how many
// hash operations run at once.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Enforce password policy (length, composition); the engine does that.
//   - Log plaintext passwords.
package password
