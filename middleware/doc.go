// Package middleware exposes HTTP middleware adapters built on top of
// authcore.Engine validation.
//
// # Guards
//
//   - [Guard] — bearer-token verification with blacklist check.
//   - [RequireTwoFactor] — Guard plus a completed second-factor claim.
//
// Each guard reads the Authorization header, calls Engine.Validate, and
// injects validated claims into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated
// to Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine.Validate.
package middleware
