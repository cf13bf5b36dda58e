//go:build darwin

package diskarb

/*
#cgo LDFLAGS: -framework DiskArbitration -framework CoreFoundation

#include <DiskArbitration/DiskArbitration.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdlib.h>

// Trampolines registered as the C function pointers DiskArbitration calls
// back into. unmount_trampoline forwards to the exported Go function
// goUnmountCallback and eject_trampoline to goEjectCallback; the
// cgo.Handle carried in `context` identifies which outstanding Go call is
// completing.
extern void goUnmountCallback(DADiskRef disk, DADissenterRef dissenter, void *context);
extern void goEjectCallback(DADiskRef disk, DADissenterRef dissenter, void *context);

static void unmount_trampoline(DADiskRef disk, DADissenterRef dissenter, void *context) {
	goUnmountCallback(disk, dissenter, context);
}

static void eject_trampoline(DADiskRef disk, DADissenterRef dissenter, void *context) {
	goEjectCallback(disk, dissenter, context);
}

static void da_disk_unmount(DADiskRef disk, DADiskUnmountOptions options, void *context) {
	DADiskUnmount(disk, options, unmount_trampoline, context);
}

static void da_disk_eject(DADiskRef disk, void *context) {
	DADiskEject(disk, kDADiskEjectOptionDefault, eject_trampoline, context);
}

static CFStringRef cfstr(const char *s) {
	return CFStringCreateWithCString(kCFAllocatorDefault, s, kCFStringEncodingUTF8);
}

// cfDictGetCString looks up key in dict and copies its CFString value into
// a newly malloc'd C string, or returns NULL if the key is absent or not a
// string. Caller must free() the result.
static char *cfDictGetCString(CFDictionaryRef dict, const char *key) {
	if (dict == NULL) {
		return NULL;
	}
	CFStringRef k = cfstr(key);
	CFStringRef value = (CFStringRef)CFDictionaryGetValue(dict, k);
	CFRelease(k);
	if (value == NULL || CFGetTypeID(value) != CFStringGetTypeID()) {
		return NULL;
	}
	CFIndex len = CFStringGetMaximumSizeForEncoding(CFStringGetLength(value), kCFStringEncodingUTF8) + 1;
	char *buf = (char *)malloc(len);
	if (!CFStringGetCString(value, buf, len, kCFStringEncodingUTF8)) {
		free(buf);
		return NULL;
	}
	return buf;
}

static int cfDictGetBool(CFDictionaryRef dict, const char *key) {
	if (dict == NULL) {
		return 0;
	}
	CFStringRef k = cfstr(key);
	CFBooleanRef value = (CFBooleanRef)CFDictionaryGetValue(dict, k);
	CFRelease(k);
	if (value == NULL) {
		return 0;
	}
	return CFBooleanGetValue(value) ? 1 : 0;
}
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/cgo"
	"sync"
	"time"
	"unsafe"

	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/diskerr"
)

// diskArbDescriptionKeys names the DiskArbitration description dictionary
// keys this package reads. Mirrors the kDADiskDescription* CFString
// constants; spelled as plain C strings here to avoid depending on the
// linker resolving framework-exported CFStringRef globals from cgo (a
// common portability wrinkle with this particular framework).
const (
	keyVolumeKind       = "DAVolumeKind"
	keyVolumeName       = "DAVolumeName"
	keyVolumePath       = "DAVolumePath"
	keyVolumeMountable  = "DAVolumeMountable"
	keyDeviceModel      = "DADeviceModel"
	keyMediaKind        = "DAMediaKind"
	keyMediaContent     = "DAMediaContent"
	keyMediaEjectable   = "DAMediaEjectable"
	keyMediaRemovable   = "DAMediaRemovable"
	keyMediaLeaf        = "DAMediaLeaf"
	keyMediaWhole       = "DAMediaWhole"
	keyDeviceInternal   = "DADeviceInternal"
	keyBSDName          = "DAMediaBSDName"
	keyVolumeNetwork    = "DAVolumeNetwork"
)

// session wraps a DiskArbitration session plus the dedicated dispatch queue
// callbacks are delivered on (spec.md §4.8). It implements Backend.
type session struct {
	da    C.DASessionRef
	queue unsafe.Pointer // dispatch_queue_t

	mu      sync.Mutex
	pending map[cgo.Handle]bool // bookkeeping only; Close() logs how many are outstanding
}

// NewBackend creates a disk-arbitration session bound to a dedicated serial
// dispatch queue, per spec.md §4.8: "on construction, the session is bound
// to it so that all OS-driven callbacks arrive there."
func NewBackend() (Backend, error) {
	da := C.DASessionCreate(C.kCFAllocatorDefault)
	if da == 0 {
		return nil, diskerr.NewSessionCreationFailed(fmt.Errorf("DASessionCreate returned NULL"))
	}

	label := C.CString("io.srvlab.eject-disks.session")
	defer C.free(unsafe.Pointer(label))
	queue := C.dispatch_queue_create(label, nil)
	C.DASessionSetDispatchQueue(da, (C.dispatch_queue_t)(queue))

	klog.V(4).Info("diskarb: created disk-arbitration session")
	return &session{da: da, queue: unsafe.Pointer(queue), pending: make(map[cgo.Handle]bool)}, nil
}

func (s *session) Close() {
	// Detach the queue from the session before releasing it, so no
	// callback already in flight can fire into freed state
	// (spec.md §4.8: "detach the queue from the session first").
	C.DASessionSetDispatchQueue(s.da, nil)

	s.mu.Lock()
	outstanding := len(s.pending)
	s.mu.Unlock()
	if outstanding > 0 {
		klog.V(2).Infof("diskarb: closing session with %d outstanding callback(s); OS retains our cgo.Handle until each fires", outstanding)
	}

	C.CFRelease(C.CFTypeRef(s.da))
	klog.V(4).Info("diskarb: closed disk-arbitration session")
}

// diskHandle is the concrete Handle backing real DADiskRef objects.
type diskHandle struct {
	ref     C.DADiskRef
	bsdName string
	once    sync.Once
}

func (h *diskHandle) BSDName() string { return h.bsdName }

func (h *diskHandle) Release() {
	h.once.Do(func() {
		C.CFRelease(C.CFTypeRef(h.ref))
	})
}

func (s *session) diskFromBSDName(bsdName string) (*diskHandle, error) {
	cname := C.CString(bsdName)
	defer C.free(unsafe.Pointer(cname))

	ref := C.DADiskCreateFromBSDName(C.kCFAllocatorDefault, s.da, cname)
	if ref == 0 {
		return nil, diskerr.NewNotFound(bsdName)
	}
	return &diskHandle{ref: ref, bsdName: bsdName}, nil
}

func (s *session) diskFromVolumePath(mountPath string) (*diskHandle, error) {
	abs, err := filepath.Abs(mountPath)
	if err != nil {
		abs = mountPath
	}
	curl := C.CFURLCreateFromFileSystemRepresentation(
		C.kCFAllocatorDefault,
		(*C.UInt8)(unsafe.Pointer(C.CString(abs))),
		C.CFIndex(len(abs)),
		C.Boolean(1),
	)
	if curl == 0 {
		return nil, diskerr.NewNotFound(mountPath)
	}
	defer C.CFRelease(C.CFTypeRef(curl))

	ref := C.DADiskCreateFromVolumePath(C.kCFAllocatorDefault, s.da, curl)
	if ref == 0 {
		return nil, diskerr.NewNotFound(mountPath)
	}

	bsdName := C.GoString(C.DADiskGetBSDName(ref))
	return &diskHandle{ref: ref, bsdName: bsdName}, nil
}

// Describe implements Backend.Describe by scanning volumesPath and
// describing each directory entry not excluded by the accidental-prefix
// filter (spec.md §4.3 step 1). Safety-gate evaluation against the
// resulting capability bits is left to pkg/volume.
func (s *session) Describe(ctx context.Context, volumesPath string) ([]Description, error) {
	entries, err := os.ReadDir(volumesPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", volumesPath, err)
	}

	var out []Description
	for _, entry := range entries {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if skipByName(name) {
			continue
		}

		desc, err := s.DescribeOne(ctx, filepath.Join(volumesPath, name))
		if err != nil {
			klog.V(4).Infof("diskarb: skipping %s: %v", name, err)
			continue
		}
		out = append(out, desc)
	}
	return out, nil
}

func skipByName(name string) bool {
	if len(name) == 0 {
		return true
	}
	switch {
	case name[0] == '.':
		return true
	case hasPrefix(name, "com.apple."):
		return true
	case hasPrefix(name, "Backups of "):
		return true
	}
	return false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (s *session) DescribeOne(ctx context.Context, mountPath string) (Description, error) {
	handle, err := s.diskFromVolumePath(mountPath)
	if err != nil {
		return Description{}, err
	}

	cfDesc := C.DADiskCopyDescription(handle.ref)
	if cfDesc == 0 {
		handle.Release()
		return Description{}, diskerr.NewNotFound(mountPath)
	}
	defer C.CFRelease(C.CFTypeRef(cfDesc))

	desc := Description{
		MountPath:        mountPath,
		BSDName:          handle.bsdName,
		IsEjectable:      cDictGetBool(cfDesc, keyMediaEjectable),
		IsRemovable:      cDictGetBool(cfDesc, keyMediaRemovable),
		IsInternal:       cDictGetBool(cfDesc, keyDeviceInternal),
		IsLocal:          !cDictGetBool(cfDesc, keyVolumeNetwork),
		IsUserMountable:  cDictGetBool(cfDesc, keyVolumeMountable),
		MediaContentType: cDictGetString(cfDesc, keyMediaContent),
		DeviceModel:      cDictGetString(cfDesc, keyDeviceModel),
		VolumeHandle:     handle,
	}

	// DiskArbitration does not expose a single boolean for "is root
	// filesystem", so IsRootFilesystem is set when this volume's BSD name
	// equals that of the disk created from the volume path "/".
	// IsBrowsable is false only when the mount path's last component
	// starts with '.'.
	rootHandle, rootErr := s.diskFromVolumePath("/")
	if rootErr == nil {
		desc.IsRootFilesystem = rootHandle.bsdName != "" && rootHandle.bsdName == handle.bsdName
		rootHandle.Release()
	}
	desc.IsBrowsable = !isDotUnderscoreHidden(mountPath)

	whole := C.DADiskCopyWholeDisk(handle.ref)
	if whole != 0 {
		wholeBSD := C.GoString(C.DADiskGetBSDName(whole))
		desc.WholeDiskHandle = &diskHandle{ref: whole, bsdName: wholeBSD}
		desc.WholeDiskBSDName = wholeBSD
	}

	return desc, nil
}

func isDotUnderscoreHidden(mountPath string) bool {
	base := filepath.Base(mountPath)
	return len(base) > 0 && base[0] == '.'
}

func cDictGetBool(dict C.CFDictionaryRef, key string) bool {
	ckey := C.CString(key)
	defer C.free(unsafe.Pointer(ckey))
	return C.cfDictGetBool(dict, ckey) != 0
}

func cDictGetString(dict C.CFDictionaryRef, key string) string {
	ckey := C.CString(key)
	defer C.free(unsafe.Pointer(ckey))
	cstr := C.cfDictGetCString(dict, ckey)
	if cstr == nil {
		return ""
	}
	defer C.free(unsafe.Pointer(cstr))
	return C.GoString(cstr)
}

// pendingOp is the one-shot completion channel an async adapter hands to
// the C trampoline via a cgo.Handle, per spec.md §4.2.
type pendingOp struct {
	result chan OpResult
	start  time.Time
}

func (s *session) track(h cgo.Handle) {
	s.mu.Lock()
	s.pending[h] = true
	s.mu.Unlock()
}

func (s *session) untrack(h cgo.Handle) {
	s.mu.Lock()
	delete(s.pending, h)
	s.mu.Unlock()
}

// Unmount implements Backend.Unmount. It allocates a one-shot channel,
// hands its cgo.Handle to the OS as the callback context, and awaits
// either the callback or ctx's cancellation.
func (s *session) Unmount(ctx context.Context, handle Handle, opts UnmountOptions) OpResult {
	dh, ok := handle.(*diskHandle)
	if !ok {
		return OpResult{Success: false, Err: diskerr.NewNotFound("invalid handle")}
	}

	var options C.DADiskUnmountOptions
	if opts.Whole {
		options |= C.kDADiskUnmountOptionWhole
	}
	if opts.Force {
		options |= C.kDADiskUnmountOptionForce
	}

	op := &pendingOp{result: make(chan OpResult, 1), start: time.Now()}
	h := cgo.NewHandle(op)
	s.track(h)
	defer s.untrack(h)

	C.da_disk_unmount(dh.ref, options, unsafe.Pointer(&h))

	return awaitOp(ctx, op)
}

// Eject implements Backend.Eject, following the same one-shot-channel
// bridge as Unmount.
func (s *session) Eject(ctx context.Context, handle Handle) OpResult {
	dh, ok := handle.(*diskHandle)
	if !ok {
		return OpResult{Success: false, Err: diskerr.NewNotFound("invalid handle")}
	}

	op := &pendingOp{result: make(chan OpResult, 1), start: time.Now()}
	h := cgo.NewHandle(op)
	s.track(h)
	defer s.untrack(h)

	C.da_disk_eject(dh.ref, unsafe.Pointer(&h))

	return awaitOp(ctx, op)
}

func awaitOp(ctx context.Context, op *pendingOp) OpResult {
	select {
	case res := <-op.result:
		return res
	case <-ctx.Done():
		// The trampoline still owns op.result and may fire later; the
		// channel is buffered so that late send never blocks. We do not
		// free anything here -- releasing the cgo.Handle only happens
		// when the callback reclaims it exactly once, never from the
		// timeout path (spec.md §5, Cancellation).
		return OpResult{Success: false, Err: diskerr.NewTimeout(), Duration: time.Since(op.start)}
	}
}

func (s *session) DetachDiskImage(ctx context.Context, bsdName string, force bool) OpResult {
	return runHdiutilDetach(ctx, bsdName, force)
}

//export goUnmountCallback
func goUnmountCallback(disk C.DADiskRef, dissenter C.DADissenterRef, context unsafe.Pointer) {
	handlePtr := (*cgo.Handle)(context)
	completeOp(*handlePtr, dissenter, diskerr.NewUnmountFailed)
}

//export goEjectCallback
func goEjectCallback(disk C.DADiskRef, dissenter C.DADissenterRef, context unsafe.Pointer) {
	handlePtr := (*cgo.Handle)(context)
	completeOp(*handlePtr, dissenter, diskerr.NewEjectFailed)
}

// completeOp reclaims the cgo.Handle exactly once, decodes the dissenter
// (if any) through newFailure (diskerr.NewUnmountFailed or NewEjectFailed,
// matching the operation) and sends the final result. Per spec.md §4.2:
// "exactly one send per registration; the trampoline must not dereference
// the context after send."
func completeOp(h cgo.Handle, dissenter C.DADissenterRef, newFailure func(status int32, reason string) *diskerr.DiskError) {
	value := h.Value()
	op, ok := value.(*pendingOp)
	if !ok {
		return
	}
	h.Delete()

	duration := time.Since(op.start)
	if dissenter == 0 {
		op.result <- OpResult{Success: true, Duration: duration}
		return
	}

	status := int32(C.DADissenterGetStatus(dissenter))
	reasonRef := C.DADissenterGetStatusString(dissenter)
	reason := cfStringToGo(reasonRef)

	op.result <- OpResult{Success: false, Err: newFailure(normalizeStatus(status), reason), Duration: duration}
}

// normalizeStatus maps a raw DAReturn status onto the synthetic bands
// pkg/diskerr classifies against. pkg/diskerr must stay buildable without
// cgo, so it cannot reference kDAReturnBusy etc. directly; this is the one
// place that has the real constants in scope, so it does the translation
// instead of just masking off the low byte (kDAReturnBusy and
// kDAReturnNotPermitted both have their distinguishing bits above 0xFF,
// so a plain mask can never land in diskerr's StatusBusy/StatusNotPermitted
// bands -- see DADissenter.h for the actual encoding). Any other status is
// returned unchanged, so diskerr preserves the raw code.
func normalizeStatus(raw int32) int32 {
	switch raw {
	case int32(C.kDAReturnBusy), int32(C.kDAReturnExclusiveAccess):
		return diskerr.StatusBusy
	case int32(C.kDAReturnNotPermitted), int32(C.kDAReturnNotPrivileged):
		return diskerr.StatusNotPermitted
	default:
		return raw
	}
}

func cfStringToGo(ref C.CFStringRef) string {
	if ref == 0 {
		return ""
	}
	length := C.CFStringGetLength(ref)
	maxSize := C.CFStringGetMaximumSizeForEncoding(length, C.kCFStringEncodingUTF8) + 1
	buf := make([]byte, int(maxSize))
	ok := C.CFStringGetCString(ref, (*C.char)(unsafe.Pointer(&buf[0])), maxSize, C.kCFStringEncodingUTF8)
	if ok == 0 {
		return ""
	}
	return C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
}
