package eject

// Options controls how a device group is unmounted/ejected (spec.md §3).
type Options struct {
	// Force propagates into the unmount bitmask and into any hdiutil
	// fallback invocation.
	Force bool

	// EjectPhysicalDevice, if true, ejects the whole disk after a
	// successful unmount. If false, only unmount_only semantics apply:
	// volumes are unmounted individually and the physical device is
	// left attached.
	EjectPhysicalDevice bool
}

// DefaultOptions unmounts and then ejects the physical device, without
// forcing.
func DefaultOptions() Options {
	return Options{Force: false, EjectPhysicalDevice: true}
}

// UnmountOnlyOptions unmounts every volume but never ejects the physical
// device.
func UnmountOnlyOptions() Options {
	return Options{Force: false, EjectPhysicalDevice: false}
}

// ForceOptions forces the unmount and ejects the physical device.
func ForceOptions() Options {
	return Options{Force: true, EjectPhysicalDevice: true}
}
