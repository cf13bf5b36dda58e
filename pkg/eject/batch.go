package eject

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/device"
	"github.com/srvlab/eject-disks/pkg/diskarb"
	"github.com/srvlab/eject-disks/pkg/volume"
)

// EjectAll groups vols by physical device and runs one pipeline per group
// concurrently, then aggregates the results (spec.md §4.6). Groups run
// truly in parallel; volumes within a group run sequentially in
// unmount-only mode and collectively (one whole-disk operation) otherwise.
// No cross-group synchronization; the caller never receives a result
// until every group has finished.
//
// EjectAll has no notion of session validity -- that trivial-result case
// is the session actor's responsibility (pkg/session), since it depends
// on state this package does not hold.
func EjectAll(ctx context.Context, backend diskarb.Backend, vols []volume.Volume, opts Options) BatchEjectResult {
	start := time.Now()
	if len(vols) == 0 {
		return BatchEjectResult{}
	}

	groups := device.GroupByDevice(vols)
	klog.V(2).Infof("eject: starting batch of %d volume(s) across %d device group(s)", len(vols), len(groups))

	resultsPerGroup := make([][]SingleEjectResult, len(groups))
	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func(i int, g device.PhysicalDeviceGroup) {
			defer wg.Done()
			resultsPerGroup[i] = runGroup(ctx, backend, g, opts)
		}(i, g)
	}
	wg.Wait()

	var results []SingleEjectResult
	for _, r := range resultsPerGroup {
		results = append(results, r...)
	}

	batch := aggregateResult(results, time.Since(start))
	klog.V(2).Infof("eject: batch complete: %d/%d succeeded in %v", batch.Succeeded, batch.Total, batch.TotalDuration)
	return batch
}
