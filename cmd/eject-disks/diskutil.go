//go:build darwin

package main

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/srvlab/eject-disks/pkg/eject"
	"github.com/srvlab/eject-disks/pkg/volume"
)

// diskutilEjectAll is the --use-diskutil alternate path: it shells out to
// the system diskutil(8) command once per volume instead of going through
// the DiskArbitration session in pkg/diskarb. It is used by `eject
// --use-diskutil` and by the benchmark subcommand's native-vs-diskutil
// comparison, and never by pkg/session.
func diskutilEjectAll(ctx context.Context, vols []volume.Volume, force bool) eject.BatchEjectResult {
	start := time.Now()
	results := make([]eject.SingleEjectResult, 0, len(vols))
	for _, v := range vols {
		results = append(results, diskutilEjectOne(ctx, v, force))
	}

	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return eject.BatchEjectResult{
		Total:         len(vols),
		Succeeded:     succeeded,
		Failed:        failed,
		Results:       results,
		TotalDuration: time.Since(start),
	}
}

func diskutilEjectOne(ctx context.Context, v volume.Volume, force bool) eject.SingleEjectResult {
	start := time.Now()

	args := []string{"eject"}
	if force {
		args = []string{"eject", "force"}
	}
	args = append(args, v.Path)

	cmd := exec.CommandContext(ctx, "diskutil", args...)
	out, err := cmd.CombinedOutput()
	duration := time.Since(start)

	if err != nil {
		return eject.SingleEjectResult{
			VolumeName:   v.Name,
			VolumePath:   v.Path,
			Success:      false,
			ErrorMessage: fmt.Sprintf("diskutil eject: %v: %s", err, strings.TrimSpace(string(out))),
			Duration:     duration,
		}
	}
	return eject.SingleEjectResult{
		VolumeName: v.Name,
		VolumePath: v.Path,
		Success:    true,
		Duration:   duration,
	}
}
