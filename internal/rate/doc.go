// Package rate provides the Redis-backed counters behind the login and
// refresh throttles.
//
// Counters are fixed-window: INCR plus a conditional EXPIRE on the first
// hit. Key prefixes:
//   - al:  — login per-identifier
//   - ali: — login per-IP
//   - ar:  — refresh per-session
//
// Policy (what a limit means for the caller) lives in the engine and in
// internal/limiters; this package only counts.
package rate
