package eject

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srvlab/eject-disks/pkg/device"
	"github.com/srvlab/eject-disks/pkg/diskarb"
	"github.com/srvlab/eject-disks/pkg/diskerr"
	"github.com/srvlab/eject-disks/pkg/volume"
	"github.com/srvlab/eject-disks/test/fake"
)

func singleVolumeGroup(backend *fake.Backend, mountPath, bsdName, wholeBSD string, diskImage bool) device.PhysicalDeviceGroup {
	opts := []func(*diskarb.Description){}
	if diskImage {
		opts = append(opts, fake.WithDiskImage)
	}
	backend.AddVolume(mountPath, bsdName, wholeBSD, opts...)
	vols, _ := volume.NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	return device.GroupByDevice(vols)[0]
}

func TestRunGroup_BusyUnmount_ReportsBusy(t *testing.T) {
	backend := fake.New()
	group := singleVolumeGroup(backend, "/Volumes/Busy", "disk8s1", "disk8", false)
	backend.SetUnmountResult("disk8", diskarb.OpResult{Success: false, Err: diskerr.NewUnmountFailed(diskerr.StatusBusy, "resource busy")})

	results := runGroup(context.Background(), backend, group, DefaultOptions())

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].ErrorMessage, "busy")
}

func TestRunGroup_DiskImageForce_PropagatesFailureStderr(t *testing.T) {
	backend := fake.New()
	group := singleVolumeGroup(backend, "/Volumes/Image", "disk5s1", "disk5", true)
	backend.SetDetachResult("disk5", diskarb.OpResult{Success: false, Err: diskerr.NewSubprocessFailed("hdiutil: resource busy")})

	results := runGroup(context.Background(), backend, group, ForceOptions())

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].ErrorMessage, "hdiutil: resource busy")
}

func TestRunGroup_UnmountOnly_EachVolumeIndependentResult(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Part1", "disk4s1", "disk4")
	backend.AddVolume("/Volumes/Part2", "disk4s2", "disk4")
	vols, err := volume.NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	require.NoError(t, err)
	group := device.GroupByDevice(vols)[0]

	backend.SetUnmountResult("disk4s2", diskarb.OpResult{Success: false, Err: diskerr.NewTimeout()})

	results := runGroup(context.Background(), backend, group, UnmountOnlyOptions())

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
}
