package session

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/diskerr"
	"github.com/srvlab/eject-disks/pkg/observability"
)

const (
	// breakerConsecutiveFailures is the number of consecutive caller-driven
	// eject_all failures against the same whole disk before the breaker
	// trips.
	breakerConsecutiveFailures = 3

	// breakerOpenTimeout is how long the breaker stays open before
	// allowing one half-open probe.
	breakerOpenTimeout = 2 * time.Minute

	// breakerInterval is the cyclic period in the closed state after
	// which consecutive-failure counts reset.
	breakerInterval = 1 * time.Minute
)

// deviceBreaker guards against repeated *caller-driven* eject_all calls
// hammering a whole disk that is known to be busy -- e.g. a double press
// of the Stream Deck button while the previous ejection is still failing.
// It is not an internal retry mechanism: the pipeline itself still makes
// exactly one attempt per call (spec.md §4.1); this only short-circuits
// the next call before it reaches the OS.
type deviceBreaker struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	metrics  *observability.Metrics
}

func newDeviceBreaker(metrics *observability.Metrics) *deviceBreaker {
	return &deviceBreaker{breakers: make(map[string]*gobreaker.CircuitBreaker), metrics: metrics}
}

func (d *deviceBreaker) get(wholeDiskBSD string) *gobreaker.CircuitBreaker {
	d.mu.RLock()
	cb, ok := d.breakers[wholeDiskBSD]
	d.mu.RUnlock()
	if ok {
		return cb
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[wholeDiskBSD]; ok {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        wholeDiskBSD,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			klog.Infof("session: circuit breaker for %s: %s -> %s", name, from, to)
			if d.metrics != nil {
				d.metrics.RecordCircuitBreakerStateChange(name, to.String())
			}
		},
	})
	d.breakers[wholeDiskBSD] = cb
	klog.V(4).Infof("session: created circuit breaker for %s", wholeDiskBSD)
	return cb
}

// allow reports whether a new eject attempt against wholeDiskBSD should be
// let through. It returns a *diskerr.DiskError (KindBusy) while the breaker
// is open; in half-open state the attempt is let through as the probe
// whose outcome record then feeds back.
func (d *deviceBreaker) allow(wholeDiskBSD string) error {
	cb := d.get(wholeDiskBSD)
	switch cb.State() {
	case gobreaker.StateOpen:
		return diskerr.NewUnmountFailed(diskerr.StatusBusy, wholeDiskBSD+" is repeatedly failing to eject; backing off")
	default:
		return nil
	}
}

// record feeds the outcome of one eject attempt against wholeDiskBSD back
// into its breaker.
func (d *deviceBreaker) record(wholeDiskBSD string, success bool) {
	cb := d.get(wholeDiskBSD)
	_, _ = cb.Execute(func() (interface{}, error) {
		if success {
			return nil, nil
		}
		return nil, errBreakerFailure
	})
}

var errBreakerFailure = breakerFailure{}

type breakerFailure struct{}

func (breakerFailure) Error() string { return "eject attempt failed" }
