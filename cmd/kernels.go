package cmd

import (
	"microharness/kernels/cpu"
	"microharness/kernels/nop"
	"microharness/kernels/sleep"
	"microharness/pkg/kernel"
)

// registry maps a kernel's subcommand name to a fresh instance. Re-exec'd
// worker children look themselves up here by internal/engine.EnvKernelName
// instead of walking cobra's command tree, since a child never touches
// cobra at all.
var registry = map[string]func() kernel.Kernel{
	"nop":   func() kernel.Kernel { return nop.New() },
	"sleep": func() kernel.Kernel { return sleep.New() },
	"cpu":   func() kernel.Kernel { return cpu.New() },
}
