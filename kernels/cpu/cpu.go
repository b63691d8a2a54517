// Package cpu is a CPU-bound kernel: each call spins for a configurable
// number of busy iterations, giving a kernel whose latency scales
// predictably with an operator-chosen amount of work, useful for
// validating the harness's auto-batch-sizing (spec.md §4.2) against a
// known workload.
package cpu

import (
	"strconv"

	"github.com/spf13/pflag"

	"microharness/pkg/kernel"
)

// Kernel spins Iterations times per call.
type Kernel struct {
	kernel.Base
	Iterations int64
	sink       int64
}

// New returns a cpu kernel defaulting to 1000 spin iterations per call.
func New() *Kernel { return &Kernel{Iterations: 1000} }

// RegisterFlags exposes -n/--iterations, the busy-loop length per call.
func (k *Kernel) RegisterFlags(fs *pflag.FlagSet) {
	fs.Int64VarP(&k.Iterations, "iterations", "n", k.Iterations, "busy-loop iterations per call")
}

func (k *Kernel) Init() (kernel.Info, error) {
	return kernel.Info{
		TSDSize: 8,
		Usage:   "-n iterations: busy-loop iterations per call",
		Header:  "cpu",
	}, nil
}

func (k *Kernel) Run(tsd []byte, batchSize int64) kernel.Result {
	var count int64
	var x int64
	for count < batchSize {
		for j := k.Iterations; j > 0; j-- {
			x ^= j
		}
		count++
	}
	k.sink = x
	return kernel.Result{Count: count}
}

func (k *Kernel) ResultLine() string {
	return "iterations=" + strconv.FormatInt(k.Iterations, 10)
}
