package blocker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srvlab/eject-disks/pkg/blocker"
	"github.com/srvlab/eject-disks/test/fake"
)

// Scenario 6 (spec.md §8): diagnose on a volume held by two processes
// returns exactly two ProcessInfo entries, deduplicated by PID, each with
// a non-empty command and user.
func TestDiagnoser_TwoBlockingProcesses(t *testing.T) {
	var d blocker.Diagnoser = fake.NewDiagnoser()
	fd := d.(*fake.Diagnoser)
	fd.Set("/Volumes/Busy", []blocker.ProcessInfo{
		{PID: 501, Command: "mdworker", User: "root"},
		{PID: 6789, Command: "Finder", User: "alice"},
	})

	procs, err := d.Diagnose(context.Background(), "/Volumes/Busy")
	require.NoError(t, err)
	require.Len(t, procs, 2)

	seen := map[int]bool{}
	for _, p := range procs {
		assert.False(t, seen[p.PID], "duplicate pid %d", p.PID)
		seen[p.PID] = true
		assert.NotEmpty(t, p.Command)
		assert.NotEmpty(t, p.User)
	}
}

func TestDiagnoser_NoBlockers(t *testing.T) {
	d := fake.NewDiagnoser()
	procs, err := d.Diagnose(context.Background(), "/Volumes/Free")
	require.NoError(t, err)
	assert.Empty(t, procs)
}
