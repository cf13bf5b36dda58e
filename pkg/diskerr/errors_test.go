package diskerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnmountFailed_ClassifiesBusy(t *testing.T) {
	err := NewUnmountFailed(StatusBusy, "resource busy")
	require.NotNil(t, err)
	assert.Equal(t, KindBusy, err.Kind)
	assert.True(t, IsDiskBusy(err))
	assert.Contains(t, err.Error(), "busy")
}

func TestNewEjectFailed_ClassifiesNotPrivileged(t *testing.T) {
	err := NewEjectFailed(StatusNotPermitted, "Not privileged")
	require.NotNil(t, err)
	assert.Equal(t, KindNotPrivileged, err.Kind)
	assert.True(t, IsNotPrivileged(err))
	assert.False(t, IsDiskBusy(err))
	assert.Contains(t, err.Error(), "rivileged")
}

func TestNewUnmountFailed_PreservesUnrecognizedStatus(t *testing.T) {
	err := NewUnmountFailed(0xDEAD, "")
	require.NotNil(t, err)
	assert.Equal(t, KindUnmountFailed, err.Kind)
	assert.EqualValues(t, 0xDEAD, err.Status)
}

func TestNewEjectFailed_PreservesUnrecognizedStatus(t *testing.T) {
	err := NewEjectFailed(0xBEEF, "")
	require.NotNil(t, err)
	assert.Equal(t, KindEjectFailed, err.Kind)
	assert.EqualValues(t, 0xBEEF, err.Status)
}

func TestClassify_ReasonFallback(t *testing.T) {
	// Even with an unrecognized status code, a reason string mentioning
	// "permission" or "busy" must still classify correctly -- this is how
	// a dissenter whose status is outside the recognized bands gets mapped.
	err := NewUnmountFailed(0, "Permission denied by filesystem")
	assert.Equal(t, KindNotPrivileged, err.Kind)

	err = NewUnmountFailed(0, "disk1 is busy")
	assert.Equal(t, KindBusy, err.Kind)
}

func TestIsDiskBusy_FalseForTimeout(t *testing.T) {
	err := NewTimeout()
	assert.False(t, IsDiskBusy(err))
	assert.True(t, err.Transient())
}

func TestIsDiskBusy_FalseForNil(t *testing.T) {
	assert.False(t, IsDiskBusy(nil))
	assert.False(t, IsNotPrivileged(nil))
}

func TestDiskError_TransientOnlyForBusyAndTimeout(t *testing.T) {
	cases := []struct {
		err  *DiskError
		want bool
	}{
		{NewUnmountFailed(StatusBusy, ""), true},
		{NewTimeout(), true},
		{NewNotFound("/Volumes/Foo"), false},
		{NewSubprocessFailed("exit 1"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.err.Transient(), c.err.Kind.String())
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("/Volumes/Missing")
	assert.Equal(t, KindNotFound, err.Kind)
	assert.Equal(t, "/Volumes/Missing", err.Path)
}

func TestNewSubprocessFailed(t *testing.T) {
	err := NewSubprocessFailed("hdiutil: resource busy")
	assert.Equal(t, KindSubprocessFailed, err.Kind)
	assert.Equal(t, "hdiutil: resource busy", err.Stderr)
	assert.Contains(t, err.Error(), "hdiutil: resource busy")
}

func TestNewSessionCreationFailed(t *testing.T) {
	cause := assertErr("no disk arbitration subsystem")
	err := NewSessionCreationFailed(cause)
	assert.Equal(t, KindSessionCreationFailed, err.Kind)
	assert.Contains(t, err.Error(), "no disk arbitration subsystem")
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
