package device

import (
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/diskarb"
	"github.com/srvlab/eject-disks/pkg/volume"
)

// PhysicalDeviceGroup is one whole disk and every enumerated volume that
// lives on it (spec.md §3).
type PhysicalDeviceGroup struct {
	WholeDiskBSD    string
	WholeDiskHandle diskarb.Handle // nil if no whole disk could be resolved for any volume in the group
	Volumes         []volume.Volume
}

// GroupByDevice partitions vols by their whole-disk BSD name. A volume
// whose whole-disk name cannot be obtained falls into a singleton group
// keyed by its own BSD name, or a fresh synthetic key if even that is
// empty (spec.md §4.4).
//
// Invariant: len(GroupByDevice(vols)) <= len(vols); flattening the result
// reproduces vols as a multiset.
func GroupByDevice(vols []volume.Volume) []PhysicalDeviceGroup {
	order := make([]string, 0, len(vols))
	byKey := make(map[string]*PhysicalDeviceGroup, len(vols))

	for _, v := range vols {
		key := groupKey(v)
		g, ok := byKey[key]
		if !ok {
			g = &PhysicalDeviceGroup{WholeDiskBSD: key, WholeDiskHandle: v.WholeDiskHandle}
			byKey[key] = g
			order = append(order, key)
		}
		g.Volumes = append(g.Volumes, v)
	}

	groups := make([]PhysicalDeviceGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}

	klog.V(4).Infof("device: grouped %d volume(s) into %d device group(s)", len(vols), len(groups))
	return groups
}

func groupKey(v volume.Volume) string {
	if wholeBSD := v.WholeDiskBSDName(); wholeBSD != "" {
		return wholeBSD
	}
	if v.BSDName != "" {
		return v.BSDName
	}
	return "singleton-" + uuid.NewString()
}
