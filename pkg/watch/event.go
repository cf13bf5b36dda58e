package watch

import "time"

// EventKind distinguishes the two change shapes the watcher reports.
type EventKind int

const (
	// EventMounted is reported when a new entry under /Volumes appears.
	EventMounted EventKind = iota
	// EventUnmounted is reported when a previously-seen entry disappears.
	EventUnmounted
)

func (k EventKind) String() string {
	if k == EventMounted {
		return "mounted"
	}
	return "unmounted"
}

// VolumeEvent is one debounced change under the mount-point directory.
type VolumeEvent struct {
	Kind EventKind
	Path string
	Time time.Time
}
