// Package blocker identifies which running processes hold open files on a
// volume, for diagnostic annotation after a failed eject. It is purely
// read-only: it never terminates a process or changes scheduling, and it
// is not invoked automatically by the eject pipeline (spec.md §4.7).
//
// The real implementation (libproc_darwin.go) is built only on darwin and
// uses libproc's buffer-sized call pattern (query required size, then
// fill) to list PIDs and per-process file descriptors.
package blocker
