//go:build darwin

package main

import (
	"encoding/json"
	"io"

	"github.com/srvlab/eject-disks/pkg/blocker"
	"github.com/srvlab/eject-disks/pkg/eject"
	"github.com/srvlab/eject-disks/pkg/volume"
)

// Every *Out type below declares its fields in alphabetical order by JSON
// tag, so encoding/json's declaration-order struct marshaling produces
// sorted keys without a custom encoder (spec.md §6.1: "JSON uses sorted
// keys").

// VolumeInfoOut is one volume entry of the `list` subcommand's output.
type VolumeInfoOut struct {
	BSDName     string `json:"bsdName,omitempty"`
	IsEjectable bool   `json:"isEjectable"`
	IsRemovable bool   `json:"isRemovable"`
	Name        string `json:"name"`
	Path        string `json:"path"`
}

func volumeInfoOut(v volume.Volume) VolumeInfoOut {
	return VolumeInfoOut{
		BSDName:     v.BSDName,
		IsEjectable: v.IsEjectable,
		IsRemovable: v.IsRemovable,
		Name:        v.Name,
		Path:        v.Path,
	}
}

// ListOutput is the `list` subcommand's output.
type ListOutput struct {
	Count   int             `json:"count"`
	Volumes []VolumeInfoOut `json:"volumes"`
}

// BlockingProcessOut is one process entry inside an EjectResultOut or
// DiagnoseResultOut.
type BlockingProcessOut struct {
	Command string `json:"command"`
	PID     int    `json:"pid"`
	User    string `json:"user"`
}

func blockingProcessesOut(procs []blocker.ProcessInfo) []BlockingProcessOut {
	if len(procs) == 0 {
		return nil
	}
	out := make([]BlockingProcessOut, 0, len(procs))
	for _, p := range procs {
		out = append(out, BlockingProcessOut{Command: p.Command, PID: p.PID, User: p.User})
	}
	return out
}

// EjectResultOut is one volume's outcome inside the `eject` subcommand's
// output. BlockingProcesses is populated only with --verbose and only for
// failed results (spec.md §6.1).
type EjectResultOut struct {
	BlockingProcesses []BlockingProcessOut `json:"blockingProcesses,omitempty"`
	Duration          float64              `json:"duration"`
	Error             string               `json:"error,omitempty"`
	Success           bool                 `json:"success"`
	Volume            string               `json:"volume"`
}

func ejectResultOut(r eject.SingleEjectResult, blocking []blocker.ProcessInfo) EjectResultOut {
	out := EjectResultOut{
		Duration: r.Duration.Seconds(),
		Success:  r.Success,
		Volume:   r.VolumeName,
	}
	if !r.Success {
		out.Error = r.ErrorMessage
		out.BlockingProcesses = blockingProcessesOut(blocking)
	}
	return out
}

// EjectOutput is the `eject` subcommand's output.
type EjectOutput struct {
	FailedCount   int              `json:"failedCount"`
	Method        string           `json:"method"`
	Results       []EjectResultOut `json:"results"`
	SuccessCount  int              `json:"successCount"`
	TotalCount    int              `json:"totalCount"`
	TotalDuration float64          `json:"totalDuration"`
}

// DiagnoseResultOut is one volume's entry in the `diagnose` subcommand's
// output.
type DiagnoseResultOut struct {
	BlockingProcesses []BlockingProcessOut `json:"blockingProcesses"`
	Path              string               `json:"path"`
	Volume            string               `json:"volume"`
}

// DiagnoseOutput is the `diagnose` subcommand's output.
type DiagnoseOutput struct {
	Count   int                 `json:"count"`
	Results []DiagnoseResultOut `json:"results"`
}

// BenchmarkOutput is the `benchmark` subcommand's output. The two timing
// fields and Speedup are omitted from JSON when not measured.
type BenchmarkOutput struct {
	DiskutilEjectTime *float64 `json:"diskutilEjectTime,omitempty"`
	EnumerationTime   float64  `json:"enumerationTime"`
	NativeEjectTime   *float64 `json:"nativeEjectTime,omitempty"`
	Speedup           *float64 `json:"speedup,omitempty"`
	VolumeCount       int      `json:"volumeCount"`
}

func writeJSON(w io.Writer, v interface{}, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
