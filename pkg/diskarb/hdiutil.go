package diskarb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/diskerr"
)

// runHdiutilDetach invokes `hdiutil detach [-force] /dev/<bsd>`, capturing
// stdout+stderr, and maps the result the same way the cgo DA path does:
// exit 0 is success, anything else is a *diskerr.DiskError{Kind:
// KindSubprocessFailed} carrying stderr (spec.md §4.2, §6.3).
//
// The disk-image fast path never falls back to the DiskArbitration path on
// subprocess failure (spec.md §9, preserved deliberately from the source).
func runHdiutilDetach(ctx context.Context, bsdName string, force bool) OpResult {
	start := time.Now()

	args := []string{"detach"}
	if force {
		args = append(args, "-force")
	}
	args = append(args, fmt.Sprintf("/dev/%s", bsdName))

	klog.V(4).Infof("diskarb: running hdiutil %v", args)

	cmd := exec.CommandContext(ctx, "hdiutil", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() != nil {
		klog.V(2).Infof("diskarb: hdiutil detach of %s timed out", bsdName)
		return OpResult{Success: false, Err: diskerr.NewTimeout(), Duration: duration}
	}

	if err != nil {
		klog.V(2).Infof("diskarb: hdiutil detach of %s failed: %v (stderr: %s)", bsdName, err, stderr.String())
		return OpResult{Success: false, Err: diskerr.NewSubprocessFailed(stderr.String()), Duration: duration}
	}

	klog.V(2).Infof("diskarb: hdiutil detach of %s succeeded in %v", bsdName, duration)
	if klog.V(5).Enabled() {
		klog.Infof("diskarb: hdiutil detach stdout: %s", stdout.String())
	}
	return OpResult{Success: true, Duration: duration}
}
