// Package password implements password hashing and verification with
// Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2] supports transparent parameter upgrades: if a stored hash was
// produced with weaker parameters, [Argon2.NeedsUpgrade] returns true so
// the caller can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy and
// storage belong to the caller.
package password
