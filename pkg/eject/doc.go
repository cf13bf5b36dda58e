// Package eject implements the per-device eject pipeline (unmount-whole-disk
// then eject, with a disk-image hdiutil fast path) and the batch
// orchestrator that fans the pipeline out across device groups in
// parallel.
//
// Neither the pipeline nor the orchestrator retries internally: every
// failure is reported up through a diskerr.DiskError and it is the
// caller's decision whether to retry (spec.md §4.1, §7).
//
// # Logging Verbosity Convention
//
//   - V(2): production default - per-group outcome (unmount/eject/detach)
//   - V(4): debug - state machine transitions
package eject
