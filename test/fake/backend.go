// Package fake provides an in-memory diskarb.Backend double so
// pkg/volume, pkg/device, pkg/eject, and pkg/session can be exercised
// without cgo or a darwin host, mirroring the error-injection and
// call-tracking style of this module's teacher's test/mock package.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srvlab/eject-disks/pkg/diskarb"
)

// Handle is the fake diskarb.Handle: a plain BSD name. Every Release call
// is recorded on the owning Backend; the fake does not reject a second
// Release or use of a released handle.
type Handle struct {
	mu      sync.Mutex
	bsdName string
	b       *Backend
	kind    string // "volume" or "whole"
}

func (h *Handle) BSDName() string { return h.bsdName }

func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.b != nil {
		h.b.recordRelease(h.bsdName, h.kind)
	}
}

// UnmountCall records one Unmount invocation.
type UnmountCall struct {
	BSDName string
	Opts    diskarb.UnmountOptions
}

// EjectCall records one Eject invocation.
type EjectCall struct {
	BSDName string
}

// DetachCall records one hdiutil-detach invocation.
type DetachCall struct {
	BSDName string
	Force   bool
}

// Backend is the in-memory diskarb.Backend double. Build it with New (the
// zero value has no result maps, so the Set*Result methods panic on it);
// configure with AddVolume before exercising it.
type Backend struct {
	mu sync.Mutex

	descriptions []diskarb.Description

	unmountResults map[string]diskarb.OpResult // keyed by target BSD name
	ejectResults   map[string]diskarb.OpResult
	detachResults  map[string]diskarb.OpResult
	defaultResult  diskarb.OpResult

	unmountCalls []UnmountCall
	ejectCalls   []EjectCall
	detachCalls  []DetachCall
	releases     []string

	closed bool
}

// New returns an empty fake Backend whose unconfigured operations succeed
// instantly.
func New() *Backend {
	return &Backend{
		unmountResults: make(map[string]diskarb.OpResult),
		ejectResults:   make(map[string]diskarb.OpResult),
		detachResults:  make(map[string]diskarb.OpResult),
		defaultResult:  diskarb.OpResult{Success: true},
	}
}

// AddVolume registers one volume the fake will return from Describe.
// wholeDiskBSD == "" produces a volume with no whole-disk handle.
func (b *Backend) AddVolume(mountPath, bsdName, wholeDiskBSD string, opts ...func(*diskarb.Description)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	desc := diskarb.Description{
		MountPath:       mountPath,
		BSDName:         bsdName,
		IsBrowsable:     true,
		IsEjectable:     true,
		IsUserMountable: true,
		VolumeHandle:    &Handle{bsdName: bsdName, b: b, kind: "volume"},
	}
	if wholeDiskBSD != "" {
		desc.WholeDiskHandle = &Handle{bsdName: wholeDiskBSD, b: b, kind: "whole"}
		desc.WholeDiskBSDName = wholeDiskBSD
	}
	for _, opt := range opts {
		opt(&desc)
	}
	b.descriptions = append(b.descriptions, desc)
}

// WithInternal marks a registered Description as internal and not
// removable/ejectable, for exercising the safety gate.
func WithInternal(d *diskarb.Description) {
	d.IsInternal = true
	d.IsEjectable = false
	d.IsRemovable = false
}

// WithRoot marks a registered Description as the boot volume.
func WithRoot(d *diskarb.Description) {
	d.IsRootFilesystem = true
}

// WithDiskImage marks a registered Description as disk-image-backed.
func WithDiskImage(d *diskarb.Description) {
	d.DeviceModel = "Disk Image"
}

// WithMediaContentType sets the media content type the enumerator
// cross-checks against the exclusion list.
func WithMediaContentType(contentType string) func(*diskarb.Description) {
	return func(d *diskarb.Description) { d.MediaContentType = contentType }
}

// SetUnmountResult configures the result for every later Unmount call
// targeting bsdName.
func (b *Backend) SetUnmountResult(bsdName string, res diskarb.OpResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unmountResults[bsdName] = res
}

// SetEjectResult configures the result for every later Eject call
// targeting bsdName.
func (b *Backend) SetEjectResult(bsdName string, res diskarb.OpResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ejectResults[bsdName] = res
}

// SetDetachResult configures the result for every later hdiutil-detach
// call targeting bsdName.
func (b *Backend) SetDetachResult(bsdName string, res diskarb.OpResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachResults[bsdName] = res
}

func (b *Backend) Describe(ctx context.Context, volumesPath string) ([]diskarb.Description, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]diskarb.Description, len(b.descriptions))
	copy(out, b.descriptions)
	return out, nil
}

func (b *Backend) DescribeOne(ctx context.Context, mountPath string) (diskarb.Description, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.descriptions {
		if d.MountPath == mountPath {
			return d, nil
		}
	}
	return diskarb.Description{}, fmt.Errorf("fake: no volume registered at %s", mountPath)
}

func (b *Backend) Unmount(ctx context.Context, handle diskarb.Handle, opts diskarb.UnmountOptions) diskarb.OpResult {
	bsdName := handle.BSDName()
	b.mu.Lock()
	b.unmountCalls = append(b.unmountCalls, UnmountCall{BSDName: bsdName, Opts: opts})
	res, ok := b.unmountResults[bsdName]
	if !ok {
		res = b.defaultResult
	}
	b.mu.Unlock()
	return withDuration(res)
}

func (b *Backend) Eject(ctx context.Context, handle diskarb.Handle) diskarb.OpResult {
	bsdName := handle.BSDName()
	b.mu.Lock()
	b.ejectCalls = append(b.ejectCalls, EjectCall{BSDName: bsdName})
	res, ok := b.ejectResults[bsdName]
	if !ok {
		res = b.defaultResult
	}
	b.mu.Unlock()
	return withDuration(res)
}

func (b *Backend) DetachDiskImage(ctx context.Context, bsdName string, force bool) diskarb.OpResult {
	b.mu.Lock()
	b.detachCalls = append(b.detachCalls, DetachCall{BSDName: bsdName, Force: force})
	res, ok := b.detachResults[bsdName]
	if !ok {
		res = b.defaultResult
	}
	b.mu.Unlock()
	return withDuration(res)
}

func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func withDuration(res diskarb.OpResult) diskarb.OpResult {
	if res.Duration == 0 {
		res.Duration = time.Millisecond
	}
	return res
}

func (b *Backend) recordRelease(bsdName, kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releases = append(b.releases, bsdName+":"+kind)
}

// UnmountCalls returns the recorded Unmount invocations, in call order.
func (b *Backend) UnmountCalls() []UnmountCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]UnmountCall, len(b.unmountCalls))
	copy(out, b.unmountCalls)
	return out
}

// EjectCalls returns the recorded Eject invocations, in call order.
func (b *Backend) EjectCalls() []EjectCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]EjectCall, len(b.ejectCalls))
	copy(out, b.ejectCalls)
	return out
}

// DetachCalls returns the recorded hdiutil-detach invocations, in call
// order.
func (b *Backend) DetachCalls() []DetachCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DetachCall, len(b.detachCalls))
	copy(out, b.detachCalls)
	return out
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
