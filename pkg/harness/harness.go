// Package harness is the driver and reporter (component C9, spec.md
// §4.9): it sequences calibration, the worker rectangle, statistics, and
// the printed report around a caller-supplied kernel.Kernel.
package harness

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"microharness/internal/arena"
	"microharness/internal/barrier"
	"microharness/internal/clock"
	"microharness/internal/engine"
	"microharness/internal/errors"
	"microharness/internal/log"
	"microharness/internal/options"
	"microharness/internal/report"
	"microharness/internal/stats"
	"microharness/pkg/kernel"
)

// DefaultDatasize is the ring buffer's capacity when the embedder doesn't
// override it. The original source's DATASIZE constant lives in a header
// outside this pack's retrieved files; this value is sized generously
// against typical -C/-D targets so that samples are rarely dropped during
// a normal run (spec.md §3, §9 "ring buffer overflow").
const DefaultDatasize = 8192

// Result is what Run reports back to the caller. cmd/ exits with status 1
// whenever Err is non-nil, without distinguishing the spec.md §7 error
// kinds, and otherwise exits with ExitCode. The
// calibration and snapshot fields are zero on an early (pre-rectangle)
// failure; they exist so an embedder can feed internal/metrics without
// pkg/harness importing it.
type Result struct {
	ExitCode     int
	Err          error
	OverheadNS   int64
	ResolutionNS int64
	Batches      int64
	ErrorsTotal  int64
	QuantErrors  int64
}

// Run orchestrates one benchmark invocation end to end (spec.md §4.9):
// kernel.Init, clock calibration, kernel.InitRun, arena and barrier
// allocation, the worker rectangle, statistics, the printed report, and
// teardown in reverse order. cfg must already be finalized: batch
// auto-sizing happens in options.RunConfig.Finalize, not here.
func Run(cfg *options.RunConfig, k kernel.Kernel, stdout io.Writer, logger log.Logger) Result {
	startNS := clock.NowNanos()

	info, err := k.Init()
	if err != nil {
		return Result{ExitCode: 1, Err: err}
	}
	if info.TSDSize <= 0 {
		return Result{ExitCode: 1, Err: errors.Config("kernel.Init: tsd_size must be set")}
	}

	testName := cfg.TestName
	if testName == "" {
		testName = info.Header
	}
	if cfg.EchoName {
		fmt.Fprintf(os.Stderr, "Running:%30s", testName)
	}

	logger.Debug("calibrating clock overhead and resolution")
	overheadNS := clock.CalibrateOverhead()
	resolutionNS := clock.CalibrateResolution()
	logger.WithFields(map[string]interface{}{
		"overhead_ns":   overheadNS,
		"resolution_ns": resolutionNS,
	}).Debug("clock calibrated")

	if err := k.InitRun(); err != nil {
		return Result{ExitCode: 1, Err: errors.Wrap(err, "kernel.InitRun")}
	}

	datasize := int64(DefaultDatasize)
	arenaPath := filepath.Join(os.TempDir(), fmt.Sprintf("microharness-%d.arena", os.Getpid()))
	ar, err := arena.Create(arenaPath, datasize, cfg.NumProcs, cfg.NumThreads, info.TSDSize)
	if err != nil {
		k.FiniRun()
		return Result{ExitCode: 1, Err: err}
	}
	defer func() {
		_ = ar.Close()
		_ = arena.Remove(arenaPath)
	}()

	startTimeNS := clock.NowNanos()
	br := barrier.New(ar.BarrierBytes(), int64(cfg.NumProcs*cfg.NumThreads), datasize,
		cfg.NumProcs, cfg.NumThreads, overheadNS, resolutionNS, cfg.MinSamples, cfg.DurationMS, startTimeNS)

	if err := ar.Sync(); err != nil {
		k.FiniRun()
		return Result{ExitCode: 1, Err: err}
	}

	runErr := runRectangle(cfg, k, ar, br, info, arenaPath, datasize, overheadNS, resolutionNS)
	if runErr != nil {
		k.FiniRun()
		return Result{ExitCode: 1, Err: runErr}
	}

	snap := br.Snapshot()
	if snap.Dropped > 0 {
		logger.WithField("dropped", snap.Dropped).Warn("ring buffer overflow; oldest samples were overwritten")
	}

	rpt := buildReport(cfg, k, testName, snap, resolutionNS)
	io.WriteString(stdout, rpt)

	k.FiniRun()
	k.Fini()

	if cfg.EchoName {
		fmt.Fprintf(os.Stderr, " for %12.5f seconds\n", float64(clock.NowNanos()-startNS)/1e9)
	}

	exitCode := 0
	if snap.ErrorsTotal > 0 {
		exitCode = 1
	}
	return Result{
		ExitCode:     exitCode,
		OverheadNS:   overheadNS,
		ResolutionNS: resolutionNS,
		Batches:      snap.Batches,
		ErrorsTotal:  snap.ErrorsTotal,
		QuantErrors:  snap.QuantErrors,
	}
}

// runRectangle spawns the P*T worker rectangle, either as re-exec'd child
// processes (the Go-native stand-in for fork, spec.md §9) or, in
// single_proc mode, as goroutines in this process.
func runRectangle(cfg *options.RunConfig, k kernel.Kernel, ar *arena.Arena, br *barrier.Barrier, info kernel.Info, arenaPath string, datasize, overheadNS, resolutionNS int64) error {
	if cfg.SingleProc || cfg.NumProcs == 1 {
		return engine.RunProcess(k, ar, br, 0, cfg.NumThreads, cfg.BatchSize, cfg.AlignClock)
	}

	sc := engine.SpawnConfig{
		ArenaPath:    arenaPath,
		ExtraArgs:    cfg.RawArgs,
		KernelName:   cfg.KernelName,
		NumProcs:     cfg.NumProcs,
		NumThreads:   cfg.NumThreads,
		TSDSize:      info.TSDSize,
		Datasize:     datasize,
		OverheadNS:   overheadNS,
		ResolutionNS: resolutionNS,
		MinSamples:   cfg.MinSamples,
		BatchSize:    cfg.BatchSize,
		AlignClock:   cfg.AlignClock,
	}
	return engine.SpawnProcesses(context.Background(), sc)
}

// buildReport converts the committed ns/call ring to µs/call (spec.md
// §4.8), crunches statistics with the recursive 3σ filter, builds the
// histogram, and renders the full stdout report.
func buildReport(cfg *options.RunConfig, k kernel.Kernel, testName string, snap barrier.Snapshot, resolutionNS int64) string {
	usData := make([]float64, len(snap.Data))
	for i, ns := range snap.Data {
		usData[i] = ns / 1000.0
	}

	raw := stats.Crunch(usData)
	corrected := append([]float64(nil), usData...)
	correctedStats := raw
	if len(corrected) > 40 {
		for {
			removed := stats.RemoveOutliers(corrected, correctedStats)
			if removed == 0 {
				break
			}
			corrected = corrected[:len(corrected)-removed]
			if len(corrected) <= 40 {
				correctedStats = stats.Crunch(corrected)
				break
			}
			correctedStats = stats.Crunch(corrected)
		}
	}

	histo := report.Build(usData)

	var b reportBuilder
	metric := correctedStats.Median
	if cfg.ReportMeanInstead {
		metric = correctedStats.Mean
	}

	if !cfg.SuppressHeader {
		b.line("# %-20s %6s %6s %12s %12s %10s %10s  %s", "name", "P", "T", "usecs/call", "samples", "errors", "batch", "extra")
	}
	b.line("%-22s %6d %6d %12.5f %12d %10d %10d  %s",
		testName, cfg.NumProcs, cfg.NumThreads, metric, snap.Batches, snap.ErrorsTotal, cfg.BatchSize, k.ResultLine())

	if cfg.PrintArgs {
		b.line("# invocation: -P %d -T %d -B %d", cfg.NumProcs, cfg.NumThreads, cfg.BatchSize)
	}

	if cfg.DetailedStats {
		b.line("# STATISTICS")
		b.line("#       min %12.5f   max %12.5f   mean %12.5f   median %12.5f", correctedStats.Min, correctedStats.Max, correctedStats.Mean, correctedStats.Median)
		b.line("#       stddev %12.5f   stderr %12.5f   conf99 %12.5f", correctedStats.StdDev, correctedStats.StdErr, correctedStats.Confidence99)
		b.line("#       skew %12.5f   kurtosis %12.5f", correctedStats.Skew, correctedStats.Kurtosis)
		if correctedStats.TimeCorrelationErr != nil {
			b.line("#       time_correlation: no valid data present")
		} else {
			b.line("#       time_correlation %12.7f", correctedStats.TimeCorrelation)
		}
		b.line("# DISTRIBUTION")
		b.raw(histo.Render())
	}

	if cfg.Warnings {
		warnings := report.Warnings(report.WarningInputs{
			QuantErrors:  snap.QuantErrors,
			ResolutionNS: resolutionNS,
			BatchSize:    cfg.BatchSize,
			MedianUS:     correctedStats.Median,
			CountTotal:   snap.CountTotal,
			Batches:      snap.Batches,
			ErrorsTotal:  snap.ErrorsTotal,
		})
		if len(warnings) > 0 {
			b.line("# WARNINGS")
			for _, w := range warnings {
				b.line("#       %s", w)
			}
		}
	}

	return b.String()
}

type reportBuilder struct {
	buf []byte
}

func (r *reportBuilder) line(format string, args ...interface{}) {
	r.buf = append(r.buf, []byte(fmt.Sprintf(format, args...)+"\n")...)
}

func (r *reportBuilder) raw(s string) {
	r.buf = append(r.buf, []byte(s)...)
}

func (r *reportBuilder) String() string {
	return string(r.buf)
}
