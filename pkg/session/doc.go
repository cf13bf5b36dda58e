// Package session owns the disk-arbitration session and its dedicated
// callback queue, serializes every public mutating call through a single
// actor-style lock, and exposes the public API the UI and CLI layers call
// (spec.md §4.8).
//
// Session itself holds no cgo state: it is built against the
// diskarb.Backend interface, so pkg/session is fully testable with
// test/fake. The darwin-only Shared() constructor (session_darwin.go)
// wires it to the real DiskArbitration.framework backend and the libproc
// diagnoser.
//
// # Logging Verbosity Convention
//
//   - V(2): production default - public API call outcomes
//   - V(4): debug - circuit-breaker state, serialization details
package session
