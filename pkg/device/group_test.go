package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srvlab/eject-disks/pkg/volume"
	"github.com/srvlab/eject-disks/test/fake"
)

func volumesFrom(t *testing.T, backend *fake.Backend) []volume.Volume {
	t.Helper()
	vols, err := volume.NewEnumerator(backend, "/Volumes").EnumerateEjectable(context.Background())
	require.NoError(t, err)
	return vols
}

func TestGroupByDevice_TwoPartitionsOneDevice(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Part1", "disk4s1", "disk4")
	backend.AddVolume("/Volumes/Part2", "disk4s2", "disk4")
	vols := volumesFrom(t, backend)

	groups := GroupByDevice(vols)
	require.Len(t, groups, 1)
	assert.Equal(t, "disk4", groups[0].WholeDiskBSD)
	assert.Len(t, groups[0].Volumes, 2)
}

func TestGroupByDevice_DistinctDevicesProduceDistinctGroups(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/A", "disk4s1", "disk4")
	backend.AddVolume("/Volumes/B", "disk5s1", "disk5")
	vols := volumesFrom(t, backend)

	groups := GroupByDevice(vols)
	require.Len(t, groups, 2)
}

func TestGroupByDevice_NoWholeDiskFallsBackToOwnBSDName(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Orphan", "disk9s1", "")
	vols := volumesFrom(t, backend)

	groups := GroupByDevice(vols)
	require.Len(t, groups, 1)
	assert.Equal(t, "disk9s1", groups[0].WholeDiskBSD)
	assert.Nil(t, groups[0].WholeDiskHandle)
}

func TestGroupByDevice_FlattenReproducesInput(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/Part1", "disk4s1", "disk4")
	backend.AddVolume("/Volumes/Part2", "disk4s2", "disk4")
	backend.AddVolume("/Volumes/B", "disk5s1", "disk5")
	vols := volumesFrom(t, backend)

	groups := GroupByDevice(vols)

	var flattened []volume.Volume
	for _, g := range groups {
		flattened = append(flattened, g.Volumes...)
	}
	assert.Len(t, flattened, len(vols))
	assert.ElementsMatch(t, vols, flattened)
	assert.LessOrEqual(t, len(groups), len(vols))
}

func TestGroupByDevice_Empty(t *testing.T) {
	assert.Empty(t, GroupByDevice(nil))
}
