//go:build darwin

// Command eject-disks exposes pkg/session over a one-shot CLI, so the
// eject engine can be driven and scripted without the Stream Deck plugin
// host (spec.md §6.1). Every subcommand except watch prints one result to
// stdout: count prints a bare decimal integer, the others a single JSON
// document. watch prints one JSON document per refresh until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/srvlab/eject-disks/pkg/blocker"
	"github.com/srvlab/eject-disks/pkg/eject"
	"github.com/srvlab/eject-disks/pkg/observability"
	"github.com/srvlab/eject-disks/pkg/session"
	"github.com/srvlab/eject-disks/pkg/volume"
)

// metricsAddressFlag registers the -metrics-address flag shared by every
// subcommand. It mirrors the teacher's optional metrics server in
// cmd/rds-csi-plugin/main.go: empty disables the endpoint, a non-empty
// address serves /metrics from a background goroutine.
func metricsAddressFlag(fs *flag.FlagSet) *string {
	return fs.String("metrics-address", "", "address to serve Prometheus metrics on (e.g. :9810); empty disables the endpoint")
}

// setupMetrics always builds a Metrics instance so RecordXxx calls inside
// pkg/session have somewhere to go, and additionally starts an HTTP
// /metrics endpoint when addr is non-empty.
func setupMetrics(addr string) *observability.Metrics {
	m := observability.NewMetrics()
	if addr == "" {
		return m
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		klog.Infof("cmd: serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			klog.Errorf("cmd: metrics server on %s failed: %v", addr, err)
		}
	}()
	return m
}

func main() {
	klog.InitFlags(nil)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	var err error
	switch sub {
	case "list":
		err = runList(args)
	case "count":
		err = runCount(args)
	case "eject":
		err = runEject(args)
	case "diagnose":
		err = runDiagnose(args)
	case "benchmark":
		err = runBenchmark(args)
	case "watch":
		err = runWatch(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "eject-disks: unknown subcommand %q\n", sub)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "eject-disks: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: eject-disks <subcommand> [flags]

subcommands:
  list       list every currently ejectable volume
  count      print the number of currently ejectable volumes
  eject      eject every currently ejectable volume
  diagnose   report the processes blocking each ejectable volume
  benchmark  compare native and diskutil ejection timing
  watch      stream the ejectable volume list on every /Volumes change`)
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	compact := fs.Bool("compact", false, "omit pretty-printing")
	metricsAddress := metricsAddressFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	metrics := setupMetrics(*metricsAddress)
	vols, err := session.Shared(metrics).EnumerateEjectable(context.Background())
	if err != nil {
		return err
	}

	out := ListOutput{Count: len(vols)}
	for _, v := range vols {
		out.Volumes = append(out.Volumes, volumeInfoOut(v))
	}
	return writeJSON(os.Stdout, out, *compact)
}

func runCount(args []string) error {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	metricsAddress := metricsAddressFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	metrics := setupMetrics(*metricsAddress)
	count, err := session.Shared(metrics).CountEjectable(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(count)
	return nil
}

func runEject(args []string) error {
	fs := flag.NewFlagSet("eject", flag.ExitOnError)
	compact := fs.Bool("compact", false, "omit pretty-printing")
	force := fs.Bool("force", false, "force unmount and eject")
	verbose := fs.Bool("verbose", false, "include blocking-process diagnosis for failed volumes")
	useDiskutil := fs.Bool("use-diskutil", false, "eject via the system diskutil command instead of DiskArbitration")
	metricsAddress := metricsAddressFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	metrics := setupMetrics(*metricsAddress)
	sess := session.Shared(metrics)

	vols, err := sess.EnumerateEjectable(ctx)
	if err != nil {
		return err
	}

	opts := eject.DefaultOptions()
	opts.Force = *force

	method := "native"
	var batch eject.BatchEjectResult
	if *useDiskutil {
		method = "diskutil"
		batch = diskutilEjectAll(ctx, vols, *force)
	} else {
		batch = sess.EjectAll(ctx, vols, opts)
	}

	out := EjectOutput{
		TotalCount:    batch.Total,
		SuccessCount:  batch.Succeeded,
		FailedCount:   batch.Failed,
		TotalDuration: batch.TotalDuration.Seconds(),
		Method:        method,
	}
	for _, r := range batch.Results {
		var blocking []blocker.ProcessInfo
		if *verbose && !r.Success {
			blocking, _ = sess.Diagnose(ctx, r.VolumePath)
		}
		out.Results = append(out.Results, ejectResultOut(r, blocking))
	}
	return writeJSON(os.Stdout, out, *compact)
}

func runDiagnose(args []string) error {
	fs := flag.NewFlagSet("diagnose", flag.ExitOnError)
	compact := fs.Bool("compact", false, "omit pretty-printing")
	metricsAddress := metricsAddressFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	metrics := setupMetrics(*metricsAddress)
	sess := session.Shared(metrics)

	vols, err := sess.EnumerateEjectable(ctx)
	if err != nil {
		return err
	}

	results := make([]DiagnoseResultOut, len(vols))
	var wg sync.WaitGroup
	for i, v := range vols {
		wg.Add(1)
		go func(i int, v volume.Volume) {
			defer wg.Done()
			procs, _ := sess.Diagnose(ctx, v.Path)
			results[i] = DiagnoseResultOut{
				Volume:            v.Name,
				Path:              v.Path,
				BlockingProcesses: blockingProcessesOut(procs),
			}
		}(i, v)
	}
	wg.Wait()

	return writeJSON(os.Stdout, DiagnoseOutput{Count: len(results), Results: results}, *compact)
}

func runBenchmark(args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ExitOnError)
	doEject := fs.Bool("eject", false, "actually eject volumes to time it (destructive)")
	useDiskutil := fs.Bool("use-diskutil", false, "also time the diskutil path for comparison")
	iterations := fs.Int("iterations", 1, "number of enumeration passes to average")
	metricsAddress := metricsAddressFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *iterations < 1 {
		*iterations = 1
	}

	ctx := context.Background()
	metrics := setupMetrics(*metricsAddress)
	sess := session.Shared(metrics)

	var enumTotal time.Duration
	var vols []volume.Volume
	var err error
	for i := 0; i < *iterations; i++ {
		start := time.Now()
		vols, err = sess.EnumerateEjectable(ctx)
		if err != nil {
			return err
		}
		enumTotal += time.Since(start)
	}

	out := BenchmarkOutput{
		EnumerationTime: (enumTotal / time.Duration(*iterations)).Seconds(),
		VolumeCount:     len(vols),
	}

	if *doEject && len(vols) > 0 {
		start := time.Now()
		sess.EjectAll(ctx, vols, eject.DefaultOptions())
		native := time.Since(start).Seconds()
		out.NativeEjectTime = &native

		if *useDiskutil {
			vols, err = sess.EnumerateEjectable(ctx)
			if err == nil && len(vols) > 0 {
				start = time.Now()
				diskutilEjectAll(ctx, vols, false)
				diskutilTime := time.Since(start).Seconds()
				out.DiskutilEjectTime = &diskutilTime

				if diskutilTime > 0 {
					speedup := diskutilTime / native
					out.Speedup = &speedup
				}
			}
		}
	}

	return writeJSON(os.Stdout, out, false)
}

// runWatch streams one JSON document per refresh instead of the single
// document every other subcommand prints: it supplements the UI's polling
// contract (spec.md §6.2) with fsnotify-driven updates rather than
// replacing it, per pkg/session's WatchEjectableVolumes.
func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	compact := fs.Bool("compact", false, "omit pretty-printing")
	metricsAddress := metricsAddressFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	metrics := setupMetrics(*metricsAddress)
	sess := session.Shared(metrics)

	events, stop, err := sess.WatchEjectableVolumes(ctx)
	if err != nil {
		return err
	}
	defer stop()

	for vols := range events {
		out := ListOutput{Count: len(vols)}
		for _, v := range vols {
			out.Volumes = append(out.Volumes, volumeInfoOut(v))
		}
		if err := writeJSON(os.Stdout, out, *compact); err != nil {
			return err
		}
	}
	return nil
}
