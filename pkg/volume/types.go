package volume

import (
	"fmt"
	"strings"

	"github.com/srvlab/eject-disks/pkg/diskarb"
)

// VolumeInfo is the immutable descriptor half of a Volume (spec.md §3).
type VolumeInfo struct {
	Name        string
	Path        string
	BSDName     string // "" if unavailable
	IsEjectable bool
	IsRemovable bool
	IsInternal  bool
	IsDiskImage bool
}

// Volume is a VolumeInfo plus the two OS handles the enumerator acquired
// for it: the per-volume handle and the cached whole-disk handle. Both are
// created from the same disk-arbitration session and must never be shared
// across sessions (spec.md §3).
type Volume struct {
	VolumeInfo
	VolumeHandle    diskarb.Handle
	WholeDiskHandle diskarb.Handle // nil if no whole disk could be resolved
}

// WholeDiskBSDName returns the BSD name of v's whole disk, or "" if v has
// no whole-disk handle.
func (v Volume) WholeDiskBSDName() string {
	if v.WholeDiskHandle == nil {
		return ""
	}
	return v.WholeDiskHandle.BSDName()
}

// Release gives up both of v's OS handles. Safe to call more than once.
func (v Volume) Release() {
	if v.VolumeHandle != nil {
		v.VolumeHandle.Release()
	}
	if v.WholeDiskHandle != nil {
		v.WholeDiskHandle.Release()
	}
}

func newVolumeFromDescription(mountPath string, desc diskarb.Description) Volume {
	info := VolumeInfo{
		Name:        strings.TrimSuffix(lastPathComponent(mountPath), "/"),
		Path:        mountPath,
		BSDName:     desc.BSDName,
		IsEjectable: desc.IsEjectable,
		IsRemovable: desc.IsRemovable,
		IsInternal:  desc.IsInternal,
		IsDiskImage: desc.IsDiskImage(),
	}
	return Volume{
		VolumeInfo:      info,
		VolumeHandle:    desc.VolumeHandle,
		WholeDiskHandle: desc.WholeDiskHandle,
	}
}

func lastPathComponent(path string) string {
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

func (v Volume) String() string {
	return fmt.Sprintf("Volume{name=%q bsd=%q diskImage=%t}", v.Name, v.BSDName, v.IsDiskImage)
}
