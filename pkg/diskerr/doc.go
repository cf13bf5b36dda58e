// Package diskerr is the single surface through which the rest of the
// engine classifies disk-arbitration failures.
//
// # Logging Verbosity Convention
//
// This package follows the same klog verbosity convention used throughout
// the module:
//
//   - V(0): always visible - programmer errors
//   - V(2): production default - classification outcomes callers act on
//   - V(4): debug - raw status codes and reasons as received from the OS
//
// diskerr never retries and never decides policy: it maps a status code
// and/or reason string onto a DiskError and leaves retry decisions to the
// caller (see KindBusy, IsDiskBusy and DiskError.Transient).
package diskerr
