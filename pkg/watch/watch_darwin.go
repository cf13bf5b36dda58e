//go:build darwin

package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// macOS statfs flag bits relevant to the removable/hidden heuristics below.
const (
	mntLocal      = 0x00001000
	mntDontBrowse = 0x00100000
)

const debounceWindow = 150 * time.Millisecond

// Watcher watches the mount-point directory for additions and removals
// and reports debounced VolumeEvent values. It does no safety-gate
// filtering of its own -- a caller still re-enumerates through
// pkg/session on each event to get an authoritative, capability-checked
// list; this package exists purely to avoid a tight poll loop.
type Watcher struct {
	volumesPath string
	watcher     *fsnotify.Watcher
	events      chan VolumeEvent

	mu      sync.Mutex
	known   map[string]bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once
}

// New creates a Watcher over volumesPath (conventionally /Volumes) and
// starts watching immediately; call Stop to end it.
func New(volumesPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(volumesPath); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch: watching %s: %w", volumesPath, err)
	}

	w := &Watcher{
		volumesPath: volumesPath,
		watcher:     fsw,
		events:      make(chan VolumeEvent, 16),
		known:       make(map[string]bool),
		stopCh:      make(chan struct{}),
	}
	w.seedKnownEntries()

	w.wg.Add(1)
	go w.run()

	klog.V(2).Infof("watch: watching %s for mount changes", volumesPath)
	return w, nil
}

// Events returns the channel of debounced volume change notifications.
// Closed when Stop is called.
func (w *Watcher) Events() <-chan VolumeEvent {
	return w.events
}

// Stop tears down the fsnotify watcher and closes the event channel.
// Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopped.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
		w.wg.Wait()
		close(w.events)
	})
}

func (w *Watcher) seedKnownEntries() {
	entries, err := os.ReadDir(w.volumesPath)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		w.known[filepath.Join(w.volumesPath, e.Name())] = true
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := make(map[string]bool)

	for {
		select {
		case <-w.stopCh:
			debounce.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Dir(event.Name) != w.volumesPath {
				continue
			}
			pending[event.Name] = true
			debounce.Reset(debounceWindow)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			klog.V(2).Infof("watch: fsnotify error: %v", err)

		case <-debounce.C:
			for path := range pending {
				w.check(path)
			}
			pending = make(map[string]bool)
		}
	}
}

func (w *Watcher) check(path string) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.handleGone(path)
		}
		return
	}
	if !info.IsDir() {
		return
	}

	w.mu.Lock()
	alreadyKnown := w.known[path]
	w.known[path] = true
	w.mu.Unlock()

	if alreadyKnown {
		return
	}
	if !isLocalAndBrowsable(path) {
		klog.V(4).Infof("watch: ignoring non-local or hidden entry %s", path)
		return
	}
	w.emit(VolumeEvent{Kind: EventMounted, Path: path, Time: time.Now()})
}

func (w *Watcher) handleGone(path string) {
	w.mu.Lock()
	wasKnown := w.known[path]
	delete(w.known, path)
	w.mu.Unlock()

	if !wasKnown {
		return
	}
	w.emit(VolumeEvent{Kind: EventUnmounted, Path: path, Time: time.Now()})
}

func (w *Watcher) emit(ev VolumeEvent) {
	select {
	case w.events <- ev:
	case <-w.stopCh:
	}
}

// isLocalAndBrowsable is a cheap pre-filter a caller may use before
// deciding whether an event is worth a full re-enumeration; it duplicates
// none of the enumerator's safety-gate logic and must never be treated as
// authoritative.
func isLocalAndBrowsable(mountPath string) bool {
	var stat unix.Statfs_t
	if err := unix.Statfs(mountPath, &stat); err != nil {
		return false
	}
	if stat.Flags&mntLocal == 0 {
		return false
	}
	return stat.Flags&mntDontBrowse == 0
}
