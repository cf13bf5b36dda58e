// Package diskarb is the only place in this module permitted to perform
// unsafe pointer arithmetic or talk directly to the OS disk-arbitration
// layer. It wraps DiskArbitration.framework's callback-based unmount/eject
// API as an async-friendly Backend interface, and wraps the hdiutil
// subprocess fallback used for disk images.
//
// Everything above this package (pkg/volume, pkg/device, pkg/eject,
// pkg/session) sees only the Backend interface and the opaque Handle type;
// neither type's real implementation does anything unsafe once a Handle
// has been constructed.
//
// # Logging Verbosity Convention
//
//   - V(2): production default - operation outcomes (mount/unmount/eject)
//   - V(4): debug - per-callback bookkeeping, cgo.Handle registration
//   - V(5): trace - raw dissenter status/reason as received from the OS
package diskarb
