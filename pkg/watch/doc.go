// Package watch supplements the UI's 3-second polling of
// ejectable_volume_count (spec.md §6.2) with an fsnotify-driven watcher on
// /Volumes, for callers that want change notification instead of (or in
// addition to) polling. It never replaces the polling contract: the core
// still imposes no polling itself and this package is entirely opt-in.
package watch
