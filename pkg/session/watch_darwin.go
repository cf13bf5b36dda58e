//go:build darwin

package session

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/volume"
	"github.com/srvlab/eject-disks/pkg/watch"
)

// WatchEjectableVolumes starts an fsnotify-based watcher over the
// session's mount-point directory and re-enumerates ejectable volumes
// every time it fires, publishing the refreshed list on the returned
// channel. This supplements, and never replaces, the UI's 3-second
// polling contract (spec.md §6.2): count_ejectable/enumerate_ejectable
// remain synchronous and watcher-independent, and a caller that wants
// lower-latency updates may use this instead of polling.
//
// The returned stop function releases the underlying watcher; the
// channel is closed once the watcher goroutine has exited, whether
// because stop was called or ctx was done.
func (s *Session) WatchEjectableVolumes(ctx context.Context) (<-chan []volume.Volume, func(), error) {
	s.mu.Lock()
	volumesPath := s.volumesPath
	s.mu.Unlock()

	w, err := watch.New(volumesPath)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan []volume.Volume, 1)
	done := make(chan struct{})

	go func() {
		defer close(out)
		defer w.Stop()
		for {
			select {
			case _, ok := <-w.Events():
				if !ok {
					return
				}
				vols, err := s.EnumerateEjectable(ctx)
				if err != nil {
					klog.V(2).Infof("session: watch re-enumeration failed: %v", err)
					continue
				}
				select {
				case out <- vols:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() { close(done) })
	}
	return out, stop, nil
}
