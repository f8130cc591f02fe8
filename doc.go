// Package authcore provides two-factor authentication for account login:
// password verification with argon2id, TOTP and backup-code second factors,
// an encrypted in-memory pending-login store bridging the two login steps,
// JWT access tokens, and rotating opaque refresh tokens backed by Redis
// sessions.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (LoginResult, TOTPSetup, MetricsSnapshot, etc.). Internal
// coordination — pending-login encryption, rate limiting, session encoding,
// audit dispatch — lives under internal/ and the session, jwt, and password
// sub-packages.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Own user records: accounts live behind the caller's [UserProvider].
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//
// # Performance contract
//
// Validate is the hot path. It performs one JWT parse and one Redis
// round-trip for the blacklist check. Login, ConfirmLogin2FA, and Refresh
// are allowed a handful of Redis round-trips per call.
package authcore
