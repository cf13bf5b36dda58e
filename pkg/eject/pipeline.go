package eject

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/device"
	"github.com/srvlab/eject-disks/pkg/diskarb"
)

// runGroup drives one device group through the state machine of spec.md
// §4.5: Pending -> Unmounting -> Unmounted -> Ejecting -> Done, or the
// disk-image fast path Pending -> Detaching -> Done. It returns exactly
// one SingleEjectResult per volume in the group.
func runGroup(ctx context.Context, backend diskarb.Backend, group device.PhysicalDeviceGroup, opts Options) []SingleEjectResult {
	if allDiskImages(group) && opts.EjectPhysicalDevice {
		return runDiskImageFastPath(ctx, backend, group, opts)
	}
	if !opts.EjectPhysicalDevice {
		return runUnmountOnly(ctx, backend, group, opts)
	}
	if group.WholeDiskHandle == nil {
		klog.V(2).Infof("eject: group %s has no whole-disk handle; falling back to per-volume unmount (no physical eject will occur)", group.WholeDiskBSD)
		return runUnmountOnly(ctx, backend, group, opts)
	}
	return runUnmountThenEject(ctx, backend, group, opts)
}

func allDiskImages(group device.PhysicalDeviceGroup) bool {
	if len(group.Volumes) == 0 {
		return false
	}
	for _, v := range group.Volumes {
		if !v.IsDiskImage {
			return false
		}
	}
	return true
}

// runDiskImageFastPath replaces the unmount/eject sequence with a single
// `hdiutil detach /dev/<bsd>` invocation (spec.md §4.5). It never falls
// back to the disk-arbitration path on subprocess failure.
func runDiskImageFastPath(ctx context.Context, backend diskarb.Backend, group device.PhysicalDeviceGroup, opts Options) []SingleEjectResult {
	klog.V(4).Infof("eject: group %s entering state Detaching (disk-image fast path)", group.WholeDiskBSD)
	res := backend.DetachDiskImage(ctx, group.WholeDiskBSD, opts.Force)
	return propagateToAll(group, res)
}

// runUnmountThenEject drives the default path: unmount the whole disk,
// then (already gated by caller) eject it.
func runUnmountThenEject(ctx context.Context, backend diskarb.Backend, group device.PhysicalDeviceGroup, opts Options) []SingleEjectResult {
	klog.V(4).Infof("eject: group %s entering state Unmounting", group.WholeDiskBSD)
	unmountRes := backend.Unmount(ctx, group.WholeDiskHandle, diskarb.UnmountOptions{Whole: true, Force: opts.Force})
	if !unmountRes.Success {
		klog.V(2).Infof("eject: group %s unmount failed: %v", group.WholeDiskBSD, unmountRes.Err)
		return propagateToAll(group, unmountRes)
	}

	klog.V(4).Infof("eject: group %s entering state Ejecting", group.WholeDiskBSD)
	ejectRes := backend.Eject(ctx, group.WholeDiskHandle)
	ejectRes.Duration += unmountRes.Duration
	if !ejectRes.Success {
		klog.V(2).Infof("eject: group %s eject failed: %v", group.WholeDiskBSD, ejectRes.Err)
	} else {
		klog.V(2).Infof("eject: group %s unmounted and ejected in %v", group.WholeDiskBSD, ejectRes.Duration)
	}
	return propagateToAll(group, ejectRes)
}

// runUnmountOnly iterates the group's volumes serially, unmounting each
// volume handle individually rather than the whole disk (spec.md §4.5,
// unmount-only mode; also used for the "no whole-disk handle" fallback).
func runUnmountOnly(ctx context.Context, backend diskarb.Backend, group device.PhysicalDeviceGroup, opts Options) []SingleEjectResult {
	results := make([]SingleEjectResult, 0, len(group.Volumes))
	for _, v := range group.Volumes {
		start := time.Now()
		res := backend.Unmount(ctx, v.VolumeHandle, diskarb.UnmountOptions{Whole: false, Force: opts.Force})
		duration := time.Since(start)
		if res.Duration > 0 {
			duration = res.Duration
		}

		result := SingleEjectResult{VolumeName: v.Name, VolumePath: v.Path, Success: res.Success, Duration: duration}
		if !res.Success && res.Err != nil {
			result.ErrorMessage = res.Err.Error()
		}
		results = append(results, result)
	}
	return results
}

// propagateToAll assigns the same outcome and duration to every volume in
// group, per spec.md §7: partition-level failure detail is impossible
// once the operation is a whole-disk one.
func propagateToAll(group device.PhysicalDeviceGroup, res diskarb.OpResult) []SingleEjectResult {
	results := make([]SingleEjectResult, 0, len(group.Volumes))
	for _, v := range group.Volumes {
		result := SingleEjectResult{VolumeName: v.Name, VolumePath: v.Path, Success: res.Success, Duration: res.Duration}
		if !res.Success && res.Err != nil {
			result.ErrorMessage = res.Err.Error()
		}
		results = append(results, result)
	}
	return results
}
