package volume

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srvlab/eject-disks/test/fake"
)

func TestEnumerateEjectable_AdmitsExternalUSB(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Untitled", "disk4s1", "disk4")

	vols, err := NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	require.NoError(t, err)
	require.Len(t, vols, 1)
	assert.Equal(t, "Untitled", vols[0].Name)
	assert.Equal(t, "disk4s1", vols[0].BSDName)
	assert.Equal(t, "disk4", vols[0].WholeDiskBSDName())
}

func TestEnumerateEjectable_RejectsRootFilesystem(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/", "disk1s1", "disk1", fake.WithRoot)

	vols, err := NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	require.NoError(t, err)
	assert.Empty(t, vols)
}

func TestEnumerateEjectable_RejectsInternalNonRemovable(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Data", "disk1s2", "disk1", fake.WithInternal)

	vols, err := NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	require.NoError(t, err)
	assert.Empty(t, vols)
}

func TestEnumerateEjectable_RejectsExcludedMediaContentType(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Recovery", "disk1s3", "disk1", fake.WithMediaContentType("Apple_APFS_Recovery"))

	vols, err := NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	require.NoError(t, err)
	assert.Empty(t, vols)
}

func TestEnumerateEjectable_DetectsDiskImage(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Image", "disk5s1", "disk5", fake.WithDiskImage)

	vols, err := NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	require.NoError(t, err)
	require.Len(t, vols, 1)
	assert.True(t, vols[0].IsDiskImage)
}

func TestEnumerateEjectable_VolumeWithNoWholeDiskHandle(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Orphan", "disk9s1", "")

	vols, err := NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	require.NoError(t, err)
	require.Len(t, vols, 1)
	assert.Nil(t, vols[0].WholeDiskHandle)
	assert.Equal(t, "", vols[0].WholeDiskBSDName())
}

func TestCountEjectable_MatchesEnumerateLength(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/A", "disk4s1", "disk4")
	backend.AddVolume("/Volumes/B", "disk5s1", "disk5")

	count, err := NewEnumerator(backend, "/Volumes").CountEjectable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// Universal invariant (spec.md §8), root half: the root-filesystem volume
// (disk1s1) never appears among the enumerated volumes, even when it is
// listed alongside volumes that are admitted.
func TestEnumerateEjectable_UniversalInvariants(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/A", "disk4s1", "disk4")
	backend.AddVolume("/", "disk1s1", "disk1", fake.WithRoot)
	backend.AddVolume("/Volumes/Data", "disk1s2", "disk1", fake.WithInternal)

	vols, err := NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	require.NoError(t, err)
	for _, v := range vols {
		assert.NotEqual(t, "disk1s1", v.BSDName)
	}
}
