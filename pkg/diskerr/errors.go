package diskerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a DiskError for retry/display decisions. It is the only
// thing a caller should switch on; never string-match Error().
type Kind int

const (
	// KindUnknown is the zero value and should never be returned by a
	// mapping function; its presence in a DiskError indicates a bug.
	KindUnknown Kind = iota

	// KindSessionCreationFailed means the OS disk-arbitration subsystem
	// could not be reached at all. Fatal at session construction.
	KindSessionCreationFailed

	// KindNotFound means the requested mount path or BSD device does not
	// correspond to a known volume.
	KindNotFound

	// KindUnmountFailed wraps an unmount dissenter with its raw status.
	KindUnmountFailed

	// KindEjectFailed wraps an eject dissenter with its raw status.
	KindEjectFailed

	// KindBusy means the resource is in use and the operation may
	// succeed on retry. Transient.
	KindBusy

	// KindNotPrivileged means the caller lacks the rights to perform the
	// operation (e.g. unprivileged eject of a disk image). Terminal;
	// the engine never escalates privileges itself.
	KindNotPrivileged

	// KindTimeout means the caller's own deadline elapsed while waiting
	// on an OS callback. Transient, but distinct from Busy: the engine
	// imposes no internal timeout (see pkg/eject's EjectAll), so this only originates
	// from a context deadline the caller supplied.
	KindTimeout

	// KindSubprocessFailed wraps a non-zero exit from an external tool
	// (hdiutil).
	KindSubprocessFailed
)

func (k Kind) String() string {
	switch k {
	case KindSessionCreationFailed:
		return "session-creation-failed"
	case KindNotFound:
		return "not-found"
	case KindUnmountFailed:
		return "unmount-failed"
	case KindEjectFailed:
		return "eject-failed"
	case KindBusy:
		return "busy"
	case KindNotPrivileged:
		return "not-privileged"
	case KindTimeout:
		return "timeout"
	case KindSubprocessFailed:
		return "subprocess-failed"
	default:
		return "unknown"
	}
}

// DiskError is the structured error returned by every operation that talks
// to the disk-arbitration layer or shells out to hdiutil. Each variant of
// spec.md's DiskError sum type is represented by a distinct Kind plus the
// fields relevant to that kind; unused fields are left zero.
type DiskError struct {
	Kind Kind

	// Path is set for KindNotFound.
	Path string

	// Status is the raw 32-bit status code reported by the OS layer, for
	// KindUnmountFailed/KindEjectFailed. The high bits often flag the
	// originating subsystem (DiskArbitration vs IOKit); unrecognized
	// codes are preserved here rather than discarded.
	Status int32

	// Reason is the dissenter's free-form description, when the OS
	// supplied one.
	Reason string

	// Message is a human-readable summary, always set.
	Message string

	// Stderr holds the captured stderr of a failed subprocess, for
	// KindSubprocessFailed.
	Stderr string
}

func (e *DiskError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

// Transient reports whether the condition may clear on its own, i.e.
// whether a caller-driven retry could plausibly succeed. The engine itself
// never retries; this is informational for the caller only.
func (e *DiskError) Transient() bool {
	switch e.Kind {
	case KindBusy, KindTimeout:
		return true
	default:
		return false
	}
}

// Sentinel errors for errors.Is comparisons against the Kind-independent
// shape of an error, mirroring the taxonomy in spec.md §3.
var (
	ErrSessionInvalid = errors.New("session is invalid")
)

// NewSessionCreationFailed wraps the underlying OS failure to create a
// disk-arbitration session.
func NewSessionCreationFailed(cause error) *DiskError {
	return &DiskError{
		Kind:    KindSessionCreationFailed,
		Message: fmt.Sprintf("failed to create disk arbitration session: %v", cause),
	}
}

// NewNotFound reports that path does not correspond to a known volume.
func NewNotFound(path string) *DiskError {
	return &DiskError{
		Kind:    KindNotFound,
		Path:    path,
		Message: fmt.Sprintf("volume not found: %s", path),
	}
}

// NewTimeout reports that the caller's context deadline elapsed while an
// operation was outstanding.
func NewTimeout() *DiskError {
	return &DiskError{Kind: KindTimeout, Message: "operation timed out"}
}

// NewSubprocessFailed wraps a non-zero hdiutil exit.
func NewSubprocessFailed(stderr string) *DiskError {
	msg := "hdiutil failed"
	if stderr != "" {
		msg = fmt.Sprintf("hdiutil failed: %s", stderr)
	}
	return &DiskError{Kind: KindSubprocessFailed, Stderr: stderr, Message: msg}
}

// statusRange names a half-open [low, high) band of normalized status
// codes that map to a single Kind. Real macOS status codes are assembled
// from err_system()|err_sub()|code; rather than depend on cgo to get exact
// constants here (this package must stay buildable everywhere), the only
// codes classify recognizes are the synthetic StatusBusy/StatusNotPermitted
// values below. pkg/diskarb's cgo backend is the one place with
// kDAReturnBusy, kDAReturnExclusiveAccess, kDAReturnNotPermitted and
// kDAReturnNotPrivileged in scope, and it maps each of those directly onto
// one of these two constants before calling NewUnmountFailed/
// NewEjectFailed; IOKit codes are not mapped.
type statusRange struct {
	low, high int32
	kind      Kind
}

// Normalized status codes produced by pkg/diskarb's cgo backend from the
// real DAReturn/IOReturn constants (see pkg/diskarb's normalizeStatus).
const (
	// StatusBusy corresponds to kDAReturnBusy / kDAReturnExclusiveAccess.
	StatusBusy int32 = 0x100
	// StatusNotPermitted corresponds to kDAReturnNotPermitted / kDAReturnNotPrivileged.
	StatusNotPermitted int32 = 0x101
)

var statusRanges = []statusRange{
	{low: StatusBusy, high: StatusBusy + 1, kind: KindBusy},
	{low: StatusNotPermitted, high: StatusNotPermitted + 1, kind: KindNotPrivileged},
}

// classify maps a normalized status code to a Kind, defaulting to
// defaultKind (KindUnmountFailed or KindEjectFailed) when the code does not
// fall in a recognized busy/privilege band. The raw status is always
// preserved on the returned error so unrecognized codes are never silently
// dropped.
func classify(status int32, reason string, defaultKind Kind) Kind {
	for _, r := range statusRanges {
		if status >= r.low && status < r.high {
			return r.kind
		}
	}
	if looksLikePrivilege(reason) {
		return KindNotPrivileged
	}
	if looksLikeBusy(reason) {
		return KindBusy
	}
	return defaultKind
}

func looksLikePrivilege(reason string) bool {
	return containsFold(reason, "permission") || containsFold(reason, "privileged") ||
		containsFold(reason, "permitted") || containsFold(reason, "not authorized")
}

func looksLikeBusy(reason string) bool {
	return containsFold(reason, "busy") || containsFold(reason, "in use") || containsFold(reason, "resource busy")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

// NewUnmountFailed maps a dissenter (status + optional reason) from a
// whole-disk or per-volume unmount attempt onto a DiskError. status is the
// value diskarb's cgo layer normalizes from DADissenterGetStatus.
func NewUnmountFailed(status int32, reason string) *DiskError {
	kind := classify(status, reason, KindUnmountFailed)
	return buildError(kind, status, reason, "unmount")
}

// NewEjectFailed maps a dissenter from an eject attempt onto a DiskError.
func NewEjectFailed(status int32, reason string) *DiskError {
	kind := classify(status, reason, KindEjectFailed)
	return buildError(kind, status, reason, "eject")
}

func buildError(kind Kind, status int32, reason, op string) *DiskError {
	var msg string
	switch kind {
	case KindBusy:
		msg = fmt.Sprintf("%s failed: device busy", op)
	case KindNotPrivileged:
		msg = fmt.Sprintf("%s failed: not privileged", op)
	default:
		msg = fmt.Sprintf("%s failed", op)
	}
	if reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, reason)
	}
	return &DiskError{Kind: kind, Status: status, Reason: reason, Message: msg}
}

// IsDiskBusy reports true for DiskError{Kind: KindBusy} and for any error
// wrapping one, per spec.md §8: "for every DiskError::Busy(_), is_disk_busy
// == true". It returns false for KindTimeout even though Timeout is also
// transient-ish — the two are kept distinct because a caller might want to
// extend a deadline on Timeout but back off on Busy.
func IsDiskBusy(err error) bool {
	var de *DiskError
	if errors.As(err, &de) {
		return de.Kind == KindBusy
	}
	return false
}

// IsNotPrivileged reports true for DiskError{Kind: KindNotPrivileged}.
func IsNotPrivileged(err error) bool {
	var de *DiskError
	if errors.As(err, &de) {
		return de.Kind == KindNotPrivileged
	}
	return false
}
