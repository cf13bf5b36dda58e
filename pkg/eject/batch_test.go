package eject

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srvlab/eject-disks/pkg/diskarb"
	"github.com/srvlab/eject-disks/pkg/diskerr"
	"github.com/srvlab/eject-disks/pkg/volume"
	"github.com/srvlab/eject-disks/test/fake"
)

func enumerate(t *testing.T, backend *fake.Backend) []volume.Volume {
	t.Helper()
	vols, err := volume.NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	require.NoError(t, err)
	return vols
}

// Scenario 1 (spec.md §8): single external USB, single partition.
func TestEjectAll_SingleUSBSinglePartition(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Untitled", "disk4s1", "disk4")
	vols := enumerate(t, backend)

	batch := EjectAll(context.Background(), backend, vols, DefaultOptions())

	assert.Equal(t, 1, batch.Total)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 0, batch.Failed)
	assert.Len(t, backend.UnmountCalls(), 1)
	assert.Len(t, backend.EjectCalls(), 1)
	assert.Equal(t, "disk4", backend.UnmountCalls()[0].BSDName)
	assert.True(t, backend.UnmountCalls()[0].Opts.Whole)
}

// Scenario 2: USB with two partitions sharing one whole disk.
func TestEjectAll_TwoPartitionsOneWholeDiskOp(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Part1", "disk4s1", "disk4")
	backend.AddVolume("/Volumes/Part2", "disk4s2", "disk4")
	vols := enumerate(t, backend)

	batch := EjectAll(context.Background(), backend, vols, DefaultOptions())

	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Len(t, backend.UnmountCalls(), 1)
	assert.Len(t, backend.EjectCalls(), 1)
	require.Len(t, batch.Results, 2)
	assert.True(t, batch.Results[0].Success)
	assert.True(t, batch.Results[1].Success)
	assert.Equal(t, batch.Results[0].Duration, batch.Results[1].Duration)
}

// Scenario 3: disk image, single partition, force=false.
func TestEjectAll_DiskImageFastPath_NoForce(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Image", "disk5s1", "disk5", fake.WithDiskImage)
	vols := enumerate(t, backend)

	batch := EjectAll(context.Background(), backend, vols, DefaultOptions())

	assert.Equal(t, 1, batch.Succeeded)
	require.Len(t, backend.DetachCalls(), 1)
	assert.Equal(t, "disk5", backend.DetachCalls()[0].BSDName)
	assert.False(t, backend.DetachCalls()[0].Force)
	assert.Empty(t, backend.UnmountCalls())
	assert.Empty(t, backend.EjectCalls())
}

// Scenario 4: disk image, force eject.
func TestEjectAll_DiskImageFastPath_Force(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Image", "disk5s1", "disk5", fake.WithDiskImage)
	vols := enumerate(t, backend)

	batch := EjectAll(context.Background(), backend, vols, ForceOptions())

	assert.Equal(t, 1, batch.Succeeded)
	require.Len(t, backend.DetachCalls(), 1)
	assert.True(t, backend.DetachCalls()[0].Force)
}

// Scenario 5: unmount fails with a privilege error.
func TestEjectAll_UnmountPrivilegeFailure_EjectNotInvoked(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Locked", "disk6s1", "disk6")
	backend.SetUnmountResult("disk6", diskarb.OpResult{Success: false, Err: diskerr.NewUnmountFailed(diskerr.StatusNotPermitted, "Not privileged")})
	vols := enumerate(t, backend)

	batch := EjectAll(context.Background(), backend, vols, DefaultOptions())

	assert.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Results, 1)
	assert.Contains(t, batch.Results[0].ErrorMessage, "rivileged")
	assert.Empty(t, backend.EjectCalls())
}

func TestEjectAll_MixedDiskImageAndRegular_UsesDAPath(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Image", "disk7s1", "disk7", fake.WithDiskImage)
	backend.AddVolume("/Volumes/Regular", "disk7s2", "disk7")
	vols := enumerate(t, backend)

	batch := EjectAll(context.Background(), backend, vols, DefaultOptions())

	assert.Equal(t, 2, batch.Succeeded)
	assert.Empty(t, backend.DetachCalls())
	assert.Len(t, backend.UnmountCalls(), 1)
}

func TestEjectAll_NoWholeDiskHandle_FallsBackToPerVolumeUnmount(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Orphan", "disk9s1", "")
	vols := enumerate(t, backend)

	batch := EjectAll(context.Background(), backend, vols, DefaultOptions())

	assert.Equal(t, 1, batch.Succeeded)
	assert.Empty(t, backend.EjectCalls(), "no physical eject can occur without a whole-disk handle")
	require.Len(t, backend.UnmountCalls(), 1)
	assert.False(t, backend.UnmountCalls()[0].Opts.Whole)
}

func TestEjectAll_UnmountOnlyMode_NeverEjects(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Part1", "disk4s1", "disk4")
	backend.AddVolume("/Volumes/Part2", "disk4s2", "disk4")
	vols := enumerate(t, backend)

	batch := EjectAll(context.Background(), backend, vols, UnmountOnlyOptions())

	assert.Equal(t, 2, batch.Succeeded)
	assert.Empty(t, backend.EjectCalls())
	assert.Len(t, backend.UnmountCalls(), 2, "unmount-only mode unmounts each volume individually")
	for _, c := range backend.UnmountCalls() {
		assert.False(t, c.Opts.Whole)
	}
}

func TestEjectAll_Empty(t *testing.T) {
	backend := fake.New()
	batch := EjectAll(context.Background(), backend, nil, DefaultOptions())

	assert.Equal(t, BatchEjectResult{}, batch)
}

func TestEjectAll_TotalDurationCoversSlowestGroup(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Slow", "disk4s1", "disk4")
	backend.AddVolume("/Volumes/Fast", "disk5s1", "disk5")
	backend.SetUnmountResult("disk4", diskarb.OpResult{Success: true, Duration: 50 * time.Millisecond})
	backend.SetUnmountResult("disk5", diskarb.OpResult{Success: true, Duration: 1 * time.Millisecond})
	vols := enumerate(t, backend)

	batch := EjectAll(context.Background(), backend, vols, DefaultOptions())

	var maxDuration time.Duration
	for _, r := range batch.Results {
		if r.Duration > maxDuration {
			maxDuration = r.Duration
		}
	}
	assert.GreaterOrEqual(t, batch.TotalDuration, maxDuration)
}
