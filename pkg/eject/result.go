package eject

import "time"

// SingleEjectResult is the outcome for one volume (spec.md §3). Every
// volume in a failed device group inherits the same ErrorMessage and
// Duration: partition-level failure detail is impossible once the
// unmount is a whole-disk operation (spec.md §7).
type SingleEjectResult struct {
	VolumeName        string
	VolumePath        string
	Success           bool
	ErrorMessage      string
	Duration          time.Duration
	BlockingProcesses []BlockingProcess `json:"-"` // never set by pkg/eject; left for callers that run the diagnoser
}

// BlockingProcess mirrors pkg/blocker.ProcessInfo without importing
// pkg/blocker, so pkg/eject stays free of a dependency it does not
// otherwise need. cmd/eject-disks does not use this field: it attaches
// diagnoser output to its own EjectResultOut instead.
type BlockingProcess struct {
	PID     int
	Command string
	User    string
}

// BatchEjectResult is the aggregate outcome of ejecting a set of volumes
// (spec.md §3). Invariant: Succeeded + Failed == Total == len(Results);
// TotalDuration >= max(r.Duration for r in Results).
type BatchEjectResult struct {
	Total         int
	Succeeded     int
	Failed        int
	Results       []SingleEjectResult
	TotalDuration time.Duration
}

func aggregateResult(results []SingleEjectResult, totalDuration time.Duration) BatchEjectResult {
	batch := BatchEjectResult{
		Total:         len(results),
		Results:       results,
		TotalDuration: totalDuration,
	}
	for _, r := range results {
		if r.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
		// A backend may report a duration it did not spend inside this
		// call; raising TotalDuration keeps the invariant above true.
		if r.Duration > batch.TotalDuration {
			batch.TotalDuration = r.Duration
		}
	}
	return batch
}
