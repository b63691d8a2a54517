// Package options is the harness's option surface (component C2, spec.md
// §4.2 and §6): the RunConfig data model, flag registration against
// github.com/spf13/pflag (adopted for its getopt-style shorthand flags,
// which map directly onto the single-letter harness flags), and the
// auto-batch-sizing default computation.
package options

import (
	"github.com/spf13/pflag"

	"microharness/internal/errors"
)

// RunConfig is the immutable-after-parse run configuration (spec.md §3).
type RunConfig struct {
	SingleProc          bool
	AlignClock          bool
	BatchSize           int64
	MinSamples          int64
	DurationMS          int64
	EchoName            bool
	SuppressHeader      bool
	NsPerOpHint         int64
	PrintArgs           bool
	ReportMeanInstead   bool
	TestName            string
	NumProcs            int
	DetailedStats       bool
	NumThreads          int
	Warnings            bool
	DebugVerbosity      int
	PrintVersionAndExit bool

	// KernelName identifies which registered kernel to re-exec as a
	// worker child (spec.md §9's "immutable context record", extended for
	// Go's per-subcommand rather than per-binary process model). Set by
	// cmd/ before calling harness.Run; it is not a parsed CLI flag.
	KernelName string

	// RawArgs is the original process argv (excluding argv[0]), forwarded
	// to re-exec'd worker children so they can reconstruct kernel-specific
	// flags a kernel registered via kernel.FlagRegistrar. The harness's own
	// flags travel to children as environment variables instead (see
	// internal/engine.SpawnConfig); RawArgs exists only so kernel-specific
	// state survives the re-exec boundary too. Set by cmd/ before calling
	// harness.Run; it is not a parsed CLI flag.
	RawArgs []string
}

// Default returns the harness's baseline configuration before flags are
// parsed (spec.md §3: num_procs>=1, num_threads>=1).
func Default() *RunConfig {
	return &RunConfig{
		NsPerOpHint: 1000,
		NumProcs:    1,
		NumThreads:  1,
	}
}

// Register adds every harness-reserved flag (spec.md §6) to fs, using
// pflag's shorthand form so each maps onto the spec's single-letter flag.
func (c *RunConfig) Register(fs *pflag.FlagSet) {
	fs.BoolVarP(&c.SingleProc, "single-proc", "1", false, "single-process mode; overrides -P")
	fs.BoolVarP(&c.AlignClock, "align-clock", "A", false, "align sampling with the wall clock")
	fs.VarP(newSizeValue(&c.BatchSize, 0), "batch-size", "B", "batch size (0 = auto)")
	fs.VarP(newSizeValue(&c.MinSamples, 0), "min-samples", "C", "minimum number of samples")
	fs.VarP(newSizeValue(&c.DurationMS, 0), "duration-ms", "D", "minimum run duration in milliseconds")
	fs.BoolVarP(&c.EchoName, "echo", "E", false, "echo test name to stderr with elapsed time")
	fs.IntVarP(&c.DebugVerbosity, "debug", "G", 0, "debug verbosity (0-9)")
	fs.BoolVarP(&c.SuppressHeader, "suppress-header", "H", false, "suppress the header line")
	fs.VarP(newSizeValue(&c.NsPerOpHint, 1000), "ns-per-op-hint", "I", "hint: nanoseconds per op, used for auto-batch-sizing")
	fs.BoolVarP(&c.PrintArgs, "print-invocation", "L", false, "print the invocation line")
	fs.BoolVarP(&c.ReportMeanInstead, "mean", "M", false, "report mean instead of median")
	fs.StringVarP(&c.TestName, "name", "N", "", "test name override")
	fs.IntVarP(&c.NumProcs, "procs", "P", 1, "number of worker processes")
	fs.BoolVarP(&c.DetailedStats, "stats", "S", false, "print detailed statistics and histogram")
	fs.IntVarP(&c.NumThreads, "threads", "T", 1, "threads per process")
	fs.BoolVarP(&c.PrintVersionAndExit, "version", "V", false, "print version and exit")
	fs.BoolVarP(&c.Warnings, "warnings", "W", false, "enable warnings (implies -S)")
}

// Finalize validates the parsed configuration and applies the defaults
// spec.md §4.2 describes (neither -C nor -D set is fatal; single-proc
// forces num_procs=1 with a warning; batch_size==0 triggers auto-sizing).
// The returned warning, if non-empty, is the "-1 overrides -P" notice
// (spec.md scenario S6) that the caller should log.
func (c *RunConfig) Finalize() (warning string, err error) {
	if c.MinSamples <= 0 && c.DurationMS <= 0 {
		return "", errors.Config("at least one of -C (min samples) or -D (duration) must be positive")
	}

	if c.SingleProc && c.NumProcs != 1 {
		warning = "-1 overrides -P"
		c.NumProcs = 1
	}
	if c.NumProcs < 1 {
		return warning, errors.Config("-P must be >= 1")
	}
	if c.NumThreads < 1 {
		return warning, errors.Config("-T must be >= 1")
	}

	if c.Warnings {
		c.DetailedStats = true
	}

	if c.BatchSize == 0 {
		c.BatchSize = autoBatchSize(c)
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}

	return warning, nil
}

// autoBatchSize implements spec.md §4.2's auto-sizing formula: target a
// sample duration long enough to dominate clock quantization, then divide
// by the kernel's hinted per-op cost.
func autoBatchSize(c *RunConfig) int64 {
	var sampleNS float64
	if c.MinSamples > 0 {
		sampleNS = round(10e9 / float64(c.MinSamples))
	} else {
		sampleNS = round(float64(c.DurationMS) * 1e6 / 100)
	}
	hint := c.NsPerOpHint
	if hint <= 0 {
		hint = 1
	}
	size := int64(sampleNS) / hint
	if size < 1 {
		size = 1
	}
	return size
}

func round(f float64) float64 {
	if f < 0 {
		return float64(int64(f - 0.5))
	}
	return float64(int64(f + 0.5))
}
