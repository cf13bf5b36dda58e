package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srvlab/eject-disks/pkg/eject"
	"github.com/srvlab/eject-disks/pkg/observability"
	"github.com/srvlab/eject-disks/test/fake"
)

func newTestSession(backend *fake.Backend) *Session {
	return New(backend, fake.NewDiagnoser(), "/Volumes", observability.NewMetrics())
}

func TestSession_EnumerateEjectable(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/USB", "disk4s1", "disk4")
	s := newTestSession(backend)

	vols, err := s.EnumerateEjectable(context.Background())
	require.NoError(t, err)
	assert.Len(t, vols, 1)
}

func TestSession_CountEjectable(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/USB", "disk4s1", "disk4")
	backend.AddVolume("/Volumes/USB2", "disk5s1", "disk5")
	s := newTestSession(backend)

	count, err := s.CountEjectable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSession_EjectAllExternal(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/USB", "disk4s1", "disk4")
	s := newTestSession(backend)

	batch := s.EjectAllExternal(context.Background(), eject.DefaultOptions())
	assert.Equal(t, 1, batch.Total)
	assert.Equal(t, 1, batch.Succeeded)
}

// Boundary behavior (spec.md §8): invalidated session yields
// success:false, error_message:"Session is invalid", duration:0 for every
// volume, and total_duration == 0.
func TestSession_Invalidate_AllCallsReturnInvalidResult(t *testing.T) {
	backend := fake.New()
	backend.AddVolume("/Volumes/USB", "disk4s1", "disk4")
	s := newTestSession(backend)

	vols, err := s.EnumerateEjectable(context.Background())
	require.NoError(t, err)
	require.Len(t, vols, 1)

	s.Invalidate()
	assert.False(t, s.Valid())
	assert.True(t, backend.Closed())

	batch := s.EjectAll(context.Background(), vols, eject.DefaultOptions())
	require.Len(t, batch.Results, 1)
	assert.False(t, batch.Results[0].Success)
	assert.Equal(t, sessionInvalidMessage, batch.Results[0].ErrorMessage)
	assert.Equal(t, time.Duration(0), batch.Results[0].Duration)
	assert.Equal(t, time.Duration(0), batch.TotalDuration)

	_, err = s.EnumerateEjectable(context.Background())
	assert.Error(t, err)
}

// Boundary behavior (spec.md §8): empty volume list yields a fully zeroed
// BatchEjectResult.
func TestSession_EjectAll_Empty(t *testing.T) {
	backend := fake.New()
	s := newTestSession(backend)

	batch := s.EjectAll(context.Background(), nil, eject.DefaultOptions())
	assert.Equal(t, eject.BatchEjectResult{}, batch)
}

func TestSession_Invalidate_Idempotent(t *testing.T) {
	backend := fake.New()
	s := newTestSession(backend)

	s.Invalidate()
	s.Invalidate()
	assert.False(t, s.Valid())
}
