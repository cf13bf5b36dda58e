package fake

import (
	"context"

	"github.com/srvlab/eject-disks/pkg/blocker"
)

// Diagnoser is an in-memory blocker.Diagnoser double, keyed by mount path.
type Diagnoser struct {
	results map[string][]blocker.ProcessInfo
}

// NewDiagnoser returns an empty Diagnoser; configure it with Set.
func NewDiagnoser() *Diagnoser {
	return &Diagnoser{results: make(map[string][]blocker.ProcessInfo)}
}

// Set configures the ProcessInfo list Diagnose returns for volumePath.
func (d *Diagnoser) Set(volumePath string, procs []blocker.ProcessInfo) {
	d.results[volumePath] = procs
}

func (d *Diagnoser) Diagnose(ctx context.Context, volumePath string) ([]blocker.ProcessInfo, error) {
	return d.results[volumePath], nil
}
