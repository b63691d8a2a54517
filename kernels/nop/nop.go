// Package nop is the floor-measurement kernel: its Run does nothing but
// count, so its reported latency is the harness's own per-call overhead
// (the same role the original source's bare nop() plays for clock
// calibration, original_source/libmicro.c, adapted here into a full
// pkg/kernel.Kernel rather than an internal calibration helper).
package nop

import "microharness/pkg/kernel"

// Kernel measures call/sampling overhead: Run's body is the empty op.
type Kernel struct {
	kernel.Base
}

// New returns a ready-to-use nop kernel.
func New() *Kernel { return &Kernel{} }

func (k *Kernel) Init() (kernel.Info, error) {
	return kernel.Info{
		TSDSize: 8,
		Usage:   "measures per-call overhead; takes no options",
		Header:  "nop",
	}, nil
}

func (k *Kernel) Run(tsd []byte, batchSize int64) kernel.Result {
	var count int64
	for count < batchSize {
		count++
	}
	return kernel.Result{Count: count}
}
