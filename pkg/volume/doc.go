// Package volume turns raw disk-arbitration descriptions into the engine's
// Volume model and applies the safety gate that decides which mounted
// volumes are even eligible to be considered for ejection.
//
// The enumerator never talks to the OS directly; it is driven entirely
// through a diskarb.Backend, which makes it portable and testable without
// cgo or a darwin host (see test/fake for the Backend double used in this
// package's tests).
//
// # Logging Verbosity Convention
//
//   - V(2): production default - enumeration summary (N found, M admitted)
//   - V(4): debug - per-volume safety-gate decisions and why
package volume
