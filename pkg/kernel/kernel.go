// Package kernel defines the contract every embedder implements
// (component C10, spec.md §4.10). The harness (pkg/harness) never
// instantiates a Kernel; it is supplied by whoever calls harness.Run.
package kernel

import "github.com/spf13/pflag"

// Result is what Run reports for one timed batch invocation
// (PerSampleResult, spec.md §3). Count is the number of inner operations
// actually performed; it may be less than the configured batch size if
// the kernel stops early.
type Result struct {
	Count  int64
	Errors int64
}

// Info is what Init reports back to the driver (spec.md §4.10).
type Info struct {
	// TSDSize is the number of scratch bytes this kernel needs per
	// worker. Leaving it at 0 is an ERR_CONFIG failure (spec.md §4.9).
	TSDSize int
	// OptStr documents the flag letters this kernel consumes via
	// OptSwitch, getopt-style (e.g. "n:c").
	OptStr string
	Usage  string
	Header string
}

// Kernel is the benchmark operation under measurement, plus its option
// hooks and per-worker lifecycle callbacks (spec.md §4.10).
type Kernel interface {
	// Init runs in the parent after the command line has been parsed and
	// the configuration finalized (harness.Run calls it first), and once
	// more in each re-exec'd worker process after its flags are re-parsed.
	Init() (Info, error)

	// OptSwitch is the getopt-style hook for one flag letter (spec.md
	// §4.2). The harness does not call it: an unrecognized flag is
	// rejected by the command-line parser, and kernels expose their own
	// options through FlagRegistrar instead.
	OptSwitch(letter rune, arg string) error

	// InitRun runs once, in the parent, after configuration is frozen.
	// It may allocate resources shared by every worker.
	InitRun() error

	// InitWorker runs once per worker, before its batch loop starts, and
	// returns its pre-loop error count.
	InitWorker(tsd []byte) int64

	// InitBatch runs before every timed sample and returns the error
	// count accumulated since the previous FiniBatch.
	InitBatch(tsd []byte) int64

	// Run performs the timed operations. batchSize is the configured
	// upper bound on inner operations; Result.Count reports how many
	// were actually completed.
	Run(tsd []byte, batchSize int64) Result

	// FiniBatch runs after every timed sample and returns the error
	// count to carry into the next batch's InitBatch.
	FiniBatch(tsd []byte) int64

	// FiniWorker runs once per worker at teardown.
	FiniWorker(tsd []byte)

	// ResultLine returns the kernel-supplied extra columns for the
	// one-line result (spec.md §4.9).
	ResultLine() string

	// FiniRun and Fini release resources acquired by InitRun and Init,
	// respectively, mirroring them in reverse order.
	FiniRun()
	Fini()
}

// Base provides no-op defaults for every Kernel method except Init and
// Run. Embed it in a kernel that only needs to override those two.
type Base struct{}

func (Base) OptSwitch(rune, string) error { return nil }
func (Base) InitRun() error                { return nil }
func (Base) InitWorker([]byte) int64       { return 0 }
func (Base) InitBatch([]byte) int64        { return 0 }
func (Base) FiniBatch([]byte) int64        { return 0 }
func (Base) FiniWorker([]byte)             {}
func (Base) ResultLine() string            { return "" }
func (Base) FiniRun()                      {}
func (Base) Fini()                         {}

// FlagRegistrar is an optional interface a Kernel may implement to expose
// its own command-line flags. Where the original's OptSwitch is a
// getopt-style single-letter callback (kept above for spec fidelity), the
// reference kernels under kernels/ register their options directly on the
// cobra command's pflag.FlagSet, following this module's ambient CLI
// stack rather than hand-rolling a second option parser.
type FlagRegistrar interface {
	RegisterFlags(fs *pflag.FlagSet)
}
