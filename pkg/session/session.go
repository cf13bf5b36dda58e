package session

import (
	"context"
	"os"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/blocker"
	"github.com/srvlab/eject-disks/pkg/device"
	"github.com/srvlab/eject-disks/pkg/diskarb"
	"github.com/srvlab/eject-disks/pkg/diskerr"
	"github.com/srvlab/eject-disks/pkg/eject"
	"github.com/srvlab/eject-disks/pkg/observability"
	"github.com/srvlab/eject-disks/pkg/volume"
)

// sessionInvalidMessage is the exact error_message token the UI layer
// matches on (spec.md §6.2 documents "permission|rivileged|permitted" and
// "busy|Busy" as stable tokens; "Session is invalid" is this package's own
// stable token for the invalidated-session boundary case, spec.md §8).
const sessionInvalidMessage = "Session is invalid"

// Session owns a disk-arbitration backend and serializes every public
// call that touches it or the validity flag, per spec.md §4.8. There is
// no parallel mutation of session state: concurrent callers queue on mu.
type Session struct {
	mu sync.Mutex

	backend     diskarb.Backend
	diagnoser   blocker.Diagnoser
	volumesPath string
	valid       bool
	breaker     *deviceBreaker
	metrics     *observability.Metrics
}

// New builds a Session over an already-constructed Backend. Most callers
// on darwin should use Shared() instead; New exists so tests (and
// alternate backends) can inject their own. metrics may be nil, in which
// case every RecordXxx call below is skipped (see the diagnoser nil-guard
// in Diagnose for the same pattern).
func New(backend diskarb.Backend, diagnoser blocker.Diagnoser, volumesPath string, metrics *observability.Metrics) *Session {
	return &Session{
		backend:     backend,
		diagnoser:   diagnoser,
		volumesPath: volumesPath,
		valid:       true,
		breaker:     newDeviceBreaker(metrics),
		metrics:     metrics,
	}
}

// EnumerateEjectable lists every volume currently eligible for ejection.
func (s *Session) EnumerateEjectable(ctx context.Context) ([]volume.Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.valid {
		return nil, diskerr.ErrSessionInvalid
	}
	start := time.Now()
	vols, err := volume.NewEnumerator(s.backend, s.volumesPath).EnumerateEjectable(ctx)
	if err == nil && s.metrics != nil {
		s.metrics.RecordEnumeration(len(vols), time.Since(start))
	}
	return vols, err
}

// CountEjectable returns the number of currently ejectable volumes,
// without exposing their OS handles to the caller.
func (s *Session) CountEjectable(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.valid {
		return 0, diskerr.ErrSessionInvalid
	}
	start := time.Now()
	count, err := volume.NewEnumerator(s.backend, s.volumesPath).CountEjectable(ctx)
	if err == nil && s.metrics != nil {
		s.metrics.RecordEnumeration(count, time.Since(start))
	}
	return count, err
}

// Unmount unmounts a single volume handle directly (not the whole disk).
func (s *Session) Unmount(ctx context.Context, v volume.Volume, opts eject.Options) eject.SingleEjectResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.valid {
		return invalidSessionResult(v.Name, v.Path)
	}

	start := time.Now()
	res := s.backend.Unmount(ctx, v.VolumeHandle, diskarb.UnmountOptions{Whole: false, Force: opts.Force})
	result := eject.SingleEjectResult{VolumeName: v.Name, VolumePath: v.Path, Success: res.Success, Duration: res.Duration}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	if !res.Success && res.Err != nil {
		result.ErrorMessage = res.Err.Error()
	}
	if s.metrics != nil {
		s.metrics.RecordEjectOp("unmount", result.Success, result.Duration)
	}
	klog.V(2).Infof("session: unmount %s: success=%t", v.Name, res.Success)
	return result
}

// UnmountByPath resolves path to a volume and unmounts it directly.
func (s *Session) UnmountByPath(ctx context.Context, path string, opts eject.Options) eject.SingleEjectResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.valid {
		return invalidSessionResult(path, path)
	}

	desc, err := s.backend.DescribeOne(ctx, path)
	if err != nil {
		return eject.SingleEjectResult{VolumeName: path, VolumePath: path, Success: false, ErrorMessage: err.Error()}
	}

	start := time.Now()
	res := s.backend.Unmount(ctx, desc.VolumeHandle, diskarb.UnmountOptions{Whole: false, Force: opts.Force})
	result := eject.SingleEjectResult{VolumeName: path, VolumePath: path, Success: res.Success, Duration: res.Duration}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	if !res.Success && res.Err != nil {
		result.ErrorMessage = res.Err.Error()
	}
	if s.metrics != nil {
		s.metrics.RecordEjectOp("unmount_by_path", result.Success, result.Duration)
	}
	return result
}

// EjectAll ejects the given volumes, grouped by physical device
// (spec.md §4.6). An invalidated session yields the documented boundary
// result for every volume without touching the OS (spec.md §8).
func (s *Session) EjectAll(ctx context.Context, vols []volume.Volume, opts eject.Options) eject.BatchEjectResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vols) == 0 {
		return eject.BatchEjectResult{}
	}
	if !s.valid {
		return invalidSessionBatch(vols)
	}

	start := time.Now()
	groups := device.GroupByDevice(vols)
	var allowed []volume.Volume
	results := make(map[string]eject.SingleEjectResult, len(vols))

	for _, g := range groups {
		if err := s.breaker.allow(g.WholeDiskBSD); err != nil {
			klog.V(2).Infof("session: circuit breaker blocking eject of %s: %v", g.WholeDiskBSD, err)
			for _, v := range g.Volumes {
				results[v.Path] = eject.SingleEjectResult{VolumeName: v.Name, VolumePath: v.Path, Success: false, ErrorMessage: err.Error()}
			}
			continue
		}
		allowed = append(allowed, g.Volumes...)
	}

	if len(allowed) > 0 {
		batch := eject.EjectAll(ctx, s.backend, allowed, opts)
		s.recordBreakerOutcomes(allowed, batch)
		for _, r := range batch.Results {
			results[r.VolumePath] = r
		}
	}

	ordered := make([]eject.SingleEjectResult, 0, len(vols))
	var succeeded, failed int
	var maxDuration time.Duration
	for _, v := range vols {
		r, ok := results[v.Path]
		if !ok {
			r = invalidSessionResult(v.Name, v.Path)
		}
		ordered = append(ordered, r)
		if r.Success {
			succeeded++
		} else {
			failed++
		}
		if r.Duration > maxDuration {
			maxDuration = r.Duration
		}
		if s.metrics != nil {
			s.metrics.RecordEjectOp("eject_all", r.Success, r.Duration)
		}
	}

	totalDuration := time.Since(start)
	if maxDuration > totalDuration {
		totalDuration = maxDuration
	}
	return eject.BatchEjectResult{
		Total:         len(vols),
		Succeeded:     succeeded,
		Failed:        failed,
		Results:       ordered,
		TotalDuration: totalDuration,
	}
}

// EjectAllExternal enumerates every ejectable volume and ejects all of
// them (spec.md §4.8).
func (s *Session) EjectAllExternal(ctx context.Context, opts eject.Options) eject.BatchEjectResult {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return eject.BatchEjectResult{}
	}
	vols, err := volume.NewEnumerator(s.backend, s.volumesPath).EnumerateEjectable(ctx)
	s.mu.Unlock()

	if err != nil {
		klog.V(2).Infof("session: eject_all_external enumeration failed: %v", err)
		return eject.BatchEjectResult{}
	}
	return s.EjectAll(ctx, vols, opts)
}

// Diagnose returns the processes blocking volumePath, if a Diagnoser was
// configured. It is never invoked automatically by EjectAll (spec.md
// §4.7): callers trigger it explicitly after a failure.
func (s *Session) Diagnose(ctx context.Context, volumePath string) ([]blocker.ProcessInfo, error) {
	if s.diagnoser == nil {
		return nil, nil
	}
	procs, err := s.diagnoser.Diagnose(ctx, volumePath)
	if err == nil && s.metrics != nil {
		s.metrics.RecordDiagnose(len(procs))
	}
	return procs, err
}

// Invalidate detaches the callback queue and releases the OS session,
// then marks the session invalid so later calls do not touch the OS:
// EnumerateEjectable and CountEjectable return ErrSessionInvalid,
// EjectAll, Unmount and UnmountByPath return the "Session is invalid"
// boundary result, and EjectAllExternal returns an empty batch. Diagnose
// and IsRunningAsRoot do not check validity (spec.md §4.8: detach the
// queue first, then release).
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.valid {
		return
	}
	s.backend.Close()
	s.valid = false
	klog.V(2).Info("session: invalidated")
}

// Valid reports whether the session still accepts OS operations.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// IsRunningAsRoot reports whether the calling process is privileged. The
// core performs no authentication or credential capture; unprivileged
// callers simply receive NotPrivileged errors from failed operations
// (spec.md §4.8).
func (s *Session) IsRunningAsRoot() bool {
	return os.Geteuid() == 0
}

func (s *Session) recordBreakerOutcomes(vols []volume.Volume, batch eject.BatchEjectResult) {
	wholeBSDByPath := make(map[string]string, len(vols))
	for _, v := range vols {
		if wholeBSD := v.WholeDiskBSDName(); wholeBSD != "" {
			wholeBSDByPath[v.Path] = wholeBSD
		}
	}

	recorded := make(map[string]bool)
	for _, r := range batch.Results {
		wholeBSD, ok := wholeBSDByPath[r.VolumePath]
		if !ok || recorded[wholeBSD] {
			continue
		}
		recorded[wholeBSD] = true
		s.breaker.record(wholeBSD, r.Success)
	}
}

func invalidSessionResult(name, path string) eject.SingleEjectResult {
	return eject.SingleEjectResult{VolumeName: name, VolumePath: path, Success: false, ErrorMessage: sessionInvalidMessage}
}

func invalidSessionBatch(vols []volume.Volume) eject.BatchEjectResult {
	results := make([]eject.SingleEjectResult, 0, len(vols))
	for _, v := range vols {
		results = append(results, invalidSessionResult(v.Name, v.Path))
	}
	return eject.BatchEjectResult{Total: len(vols), Failed: len(vols), Results: results}
}
