package volume

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/diskarb"
)

// DefaultVolumesPath is the conventional macOS mount-point directory.
const DefaultVolumesPath = "/Volumes"

// Enumerator scans the mount-point directory through a diskarb.Backend and
// applies the hard safety gates of spec.md §4.3. It holds no OS state of
// its own; all OS access goes through Backend, which is what lets it be
// exercised against an in-memory fake in tests.
type Enumerator struct {
	backend     diskarb.Backend
	volumesPath string
}

// NewEnumerator builds an Enumerator over backend, scanning volumesPath
// (use DefaultVolumesPath in production).
func NewEnumerator(backend diskarb.Backend, volumesPath string) *Enumerator {
	return &Enumerator{backend: backend, volumesPath: volumesPath}
}

// EnumerateEjectable returns every volume currently mounted under the
// enumerator's volumes path that passes the hard safety gates: never the
// boot volume, never a hidden system volume, and removable, ejectable, or
// external. Every exclusion based on the volume's name is an accidental
// prefix filter only; the authoritative decision always uses capability
// bits (spec.md §4.3 rationale).
func (e *Enumerator) EnumerateEjectable(ctx context.Context) ([]Volume, error) {
	descs, err := e.backend.Describe(ctx, e.volumesPath)
	if err != nil {
		return nil, fmt.Errorf("volume: enumerating %s: %w", e.volumesPath, err)
	}

	var out []Volume
	for _, desc := range descs {
		if !passesSafetyGate(desc) {
			continue
		}
		out = append(out, newVolumeFromDescription(desc.MountPath, desc))
	}

	klog.V(2).Infof("volume: enumerated %d volume(s), %d admitted", len(descs), len(out))
	return out, nil
}

// CountEjectable is EnumerateEjectable without retaining OS handles for
// volumes the caller only wants to count; handles are released
// immediately since the caller never receives them.
func (e *Enumerator) CountEjectable(ctx context.Context) (int, error) {
	vols, err := e.EnumerateEjectable(ctx)
	if err != nil {
		return 0, err
	}
	for _, v := range vols {
		v.Release()
	}
	return len(vols), nil
}

// passesSafetyGate implements spec.md §4.3 steps 3 and 5: the hard gates
// that must ALL pass, plus the disk-arbitration description cross-check.
func passesSafetyGate(desc diskarb.Description) bool {
	if desc.IsRootFilesystem {
		klog.V(4).Infof("volume: rejecting %s: is root filesystem", desc.BSDName)
		return false
	}
	if !desc.IsBrowsable {
		klog.V(4).Infof("volume: rejecting %s: not browsable", desc.BSDName)
		return false
	}
	if !(desc.IsEjectable || desc.IsRemovable || !desc.IsInternal) {
		klog.V(4).Infof("volume: rejecting %s: neither removable, ejectable, nor external", desc.BSDName)
		return false
	}
	if desc.SkipByMediaContentType() {
		klog.V(4).Infof("volume: rejecting %s: excluded media content type %q", desc.BSDName, desc.MediaContentType)
		return false
	}
	if !desc.IsUserMountable {
		klog.V(4).Infof("volume: rejecting %s: not user-mountable", desc.BSDName)
		return false
	}
	return true
}
