package blocker

import "context"

// ProcessInfo describes one process holding a volume open (spec.md §3).
type ProcessInfo struct {
	PID     int
	Command string
	User    string
}

// Diagnoser finds the processes blocking a mount path. The real
// implementation (libproc_darwin.go) is built only on darwin; tests use an
// in-memory fake satisfying this interface.
type Diagnoser interface {
	// Diagnose returns one ProcessInfo per distinct PID with at least one
	// open vnode file descriptor whose path is under volumePath,
	// deduplicated by PID (spec.md §4.7).
	Diagnose(ctx context.Context, volumePath string) ([]ProcessInfo, error)
}
