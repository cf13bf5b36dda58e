//go:build darwin

package session

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/blocker"
	"github.com/srvlab/eject-disks/pkg/diskarb"
	"github.com/srvlab/eject-disks/pkg/observability"
	"github.com/srvlab/eject-disks/pkg/volume"
)

var (
	sharedOnce sync.Once
	shared     *Session
)

// Shared returns a process-wide Session, constructing it on first use. It
// fails fatally on construction errors -- acceptable here because the only
// failure mode is "no disk-arbitration subsystem available", which makes
// the whole process useless (spec.md §4.8, §7).
//
// metrics is only consulted on the first call -- the Session is a
// process-wide singleton, so later callers get whichever Metrics (or nil)
// the first caller supplied. cmd/eject-disks always passes the same
// instance for every subcommand, so this is not observable in practice.
//
// The shared session is retained for the lifetime of the process; there
// is no teardown hook for it beyond explicit Invalidate().
func Shared(metrics *observability.Metrics) *Session {
	sharedOnce.Do(func() {
		backend, err := diskarb.NewBackend()
		if err != nil {
			klog.Fatalf("session: failed to create disk-arbitration session: %v", err)
		}
		shared = New(backend, blocker.NewDiagnoser(), volume.DefaultVolumesPath, metrics)
	})
	return shared
}
