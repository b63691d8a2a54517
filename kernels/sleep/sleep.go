// Package sleep measures sleep-and-wake latency: each batch call sleeps
// for a configurable duration, exercising the harness's handling of a
// kernel whose Run legitimately blocks (unlike nop and cpu, whose Run
// never yields the processor).
package sleep

import (
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"microharness/pkg/kernel"
)

// Kernel sleeps for Duration on every call within a batch. sleepUs is the
// pflag-bound raw value; Duration is derived from it once flags have
// parsed, in Init.
type Kernel struct {
	kernel.Base
	sleepUs  int64
	Duration time.Duration
}

// New returns a sleep kernel defaulting to 1ms per call.
func New() *Kernel { return &Kernel{sleepUs: 1000} }

// RegisterFlags exposes -u/--sleep-us, the per-call sleep length in
// microseconds, analogous to the original source's per-kernel OPTS string
// (spec.md §4.2's opt_switch, registered here directly as a pflag flag).
func (k *Kernel) RegisterFlags(fs *pflag.FlagSet) {
	fs.Int64VarP(&k.sleepUs, "sleep-us", "u", k.sleepUs, "microseconds to sleep per call")
}

// Init runs after cobra has parsed flags (harness.Run calls it first), so
// sleepUs already reflects -u by the time Duration is derived from it.
func (k *Kernel) Init() (kernel.Info, error) {
	k.Duration = time.Duration(k.sleepUs) * time.Microsecond
	return kernel.Info{
		TSDSize: 8,
		Usage:   "-u us: microseconds to sleep per call",
		Header:  "sleep",
	}, nil
}

func (k *Kernel) Run(tsd []byte, batchSize int64) kernel.Result {
	var count int64
	for count < batchSize {
		time.Sleep(k.Duration)
		count++
	}
	return kernel.Result{Count: count}
}

func (k *Kernel) ResultLine() string {
	return "sleep_us=" + strconv.FormatInt(int64(k.Duration/time.Microsecond), 10)
}
