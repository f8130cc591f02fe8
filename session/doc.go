// Package session provides Redis-backed session persistence, compact
// binary session encoding, refresh-token rotation, and the access-token
// blacklist.
//
// # Binary encoding
//
// Sessions are stored in Redis as a versioned binary blob. The encoder
// is append-only: future versions add fields but never reinterpret old
// ones.
//
// # Architecture boundaries
//
// This package owns the [Store], [Blacklist], and [Session] model. It
// does not interpret JWT tokens or enforce authentication policy; that
// belongs to the engine.
package session
