// Package device groups enumerated volumes by the physical device they sit
// on, so the eject pipeline can issue one whole-disk unmount/eject per
// device instead of one per partition.
package device
