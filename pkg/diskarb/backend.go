package diskarb

import (
	"context"
	"time"
)

// Handle is an opaque reference to an OS disk-arbitration object (a volume
// or a whole disk). It is created from the same session that produced it
// and must never be shared across sessions (spec.md §3, Volume invariant).
//
// Handles are documented, per spec.md §5, as safe for read-only concurrent
// use by multiple goroutines once constructed; mutation only ever happens
// through the Backend that created them.
type Handle interface {
	// BSDName returns the short OS device identifier for this handle,
	// e.g. "disk4" or "disk4s1".
	BSDName() string

	// Release gives up the engine's reference to the underlying OS
	// object. Safe to call more than once; only the first call has an
	// effect.
	Release()
}

// UnmountOptions mirrors the flags passed to the OS unmount call.
// Whole is always set by the pipeline when operating on a whole disk
// (spec.md §4.5 step 1: "flags = WHOLE (always, since we operate on the
// whole disk) ∪ FORCE if options.force"); it is cleared for the
// unmount-only per-volume path.
type UnmountOptions struct {
	Whole bool
	Force bool
}

// OpResult is the outcome of a single async unmount/eject/detach call.
type OpResult struct {
	Success  bool
	Err      error // non-nil iff !Success; always a *diskerr.DiskError
	Duration time.Duration
}

// Description is everything the enumerator needs about one mounted volume,
// as read from the disk-arbitration description dictionary and the
// filesystem capability bits. It intentionally does not import pkg/volume,
// so pkg/volume can depend on diskarb without a cycle; pkg/volume maps a
// Description onto its own VolumeInfo/Volume types.
type Description struct {
	MountPath         string
	BSDName           string
	IsRootFilesystem  bool
	IsBrowsable       bool
	IsEjectable       bool
	IsRemovable       bool
	IsInternal        bool
	IsLocal           bool
	IsUserMountable   bool
	MediaContentType  string
	DeviceModel       string // "Disk Image" identifies disk-image-backed volumes
	VolumeHandle     Handle
	WholeDiskHandle  Handle // nil if no whole disk could be resolved
	WholeDiskBSDName string // "" if WholeDiskHandle is nil
}

// mediaContentTypesToSkip are media-content types the enumerator must
// reject even when the filesystem capability bits would otherwise admit
// the volume (spec.md §4.3 step 5).
var mediaContentTypesToSkip = map[string]bool{
	"Apple_Boot":           true,
	"Apple_APFS_Recovery":  true,
	"Apple_APFS_ISC":       true,
	"Apple_KernelCoreDump": true,
}

// SkipByMediaContentType reports whether d's media content type is one the
// enumerator must always exclude, regardless of capability bits.
func (d Description) SkipByMediaContentType() bool {
	return mediaContentTypesToSkip[d.MediaContentType]
}

// IsDiskImage reports whether d is backed by a disk-image file, detected
// from the device-model description string (spec.md §4.3 step 6).
func (d Description) IsDiskImage() bool {
	return d.DeviceModel == "Disk Image"
}

// Backend is the seam between the rest of the engine and the OS. The real
// implementation (diskarbitration_darwin.go) talks to
// DiskArbitration.framework via cgo; tests run against an in-memory fake
// that satisfies the same contract (see test/fake).
type Backend interface {
	// Describe scans the OS mount-point directory (conventionally
	// /Volumes) and returns one Description per entry that is a
	// directory and does not match the accidental-prefix skip list in
	// spec.md §4.3 step 1. It performs no safety-gate filtering itself;
	// that is pkg/volume's job.
	Describe(ctx context.Context, volumesPath string) ([]Description, error)

	// DescribeOne describes a single mount path, for unmount_by_path.
	DescribeOne(ctx context.Context, mountPath string) (Description, error)

	// Unmount asynchronously unmounts handle (a whole-disk or volume
	// handle depending on the caller) and blocks until the OS callback
	// fires or ctx is done.
	Unmount(ctx context.Context, handle Handle, opts UnmountOptions) OpResult

	// Eject asynchronously ejects handle (always a whole-disk handle)
	// and blocks until the OS callback fires or ctx is done.
	Eject(ctx context.Context, handle Handle) OpResult

	// DetachDiskImage shells out to `hdiutil detach [-force] /dev/<bsd>`
	// for the disk-image fast path (spec.md §4.5).
	DetachDiskImage(ctx context.Context, bsdName string, force bool) OpResult

	// Close releases the OS disk-arbitration session. After Close, every
	// Handle previously produced by this Backend is invalid.
	Close()
}
