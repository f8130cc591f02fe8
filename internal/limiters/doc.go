// Package limiters provides per-user failure throttles for the second
// factor paths, built on the same fixed-window Redis counters as
// internal/rate.
//
// Key prefixes:
//   - att: — TOTP verification failures per user
//   - abk: — backup code failures per user
//
// Limiters count; the engine decides what a hit means for the caller.
package limiters
