// Package cmd wires the harness's cobra CLI (component C2's command
// surface, spec.md §6) around pkg/harness, following the teacher repo's
// setupCommand pattern: a cancellable context, SIGINT/SIGTERM handling via
// a goroutine, and a logger built from a verbosity level. One subcommand
// per registered kernel stands in for the original's one-binary-per-test
// convention, since a single Go binary can host every reference kernel.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"microharness/internal/engine"
	"microharness/internal/log"
	"microharness/internal/metrics"
	"microharness/internal/options"
	"microharness/pkg/harness"
	"microharness/pkg/kernel"
)

var rootCmd = &cobra.Command{
	Use:   "microharness",
	Short: "microharness drives a benchmark kernel across a P x T worker rectangle",
	Long:  `microharness is a microbenchmark harness: it spawns P worker processes times T threads, barrier-synchronizes them through shared memory, times batches of a kernel's operation, and reports one representative latency with optional statistics and warnings.`,
}

func init() {
	for name, newKernel := range registry {
		rootCmd.AddCommand(newBenchCommand(newKernel(), name))
	}
}

// Execute is the entry point main() calls. It first checks for the
// re-exec worker flag (engine.WorkerFlag), which never reaches cobra since
// it isn't a registered flag on any subcommand, then falls through to the
// normal subcommand-dispatching CLI for the parent invocation.
func Execute() {
	if idx, ok := workerIndex(os.Args); ok {
		runWorkerChild(idx)
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// workerIndex reports whether args carries a re-exec'd child's hidden
// "--worker-process=<index>" flag, and its index if so.
func workerIndex(args []string) (int, bool) {
	if len(args) < 2 {
		return 0, false
	}
	prefix := engine.WorkerFlag + "="
	arg := args[1]
	if len(arg) <= len(prefix) || arg[:len(prefix)] != prefix {
		return 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(arg[len(prefix):], "%d", &idx); err != nil {
		return 0, false
	}
	return idx, true
}

// runWorkerChild attaches to the parent's shared arena and runs this
// process's row of the worker rectangle. The engine-level parameters
// (arena path, rectangle dimensions, calibration constants) travel via
// environment variables (internal/engine.SpawnConfigFromEnv); any
// kernel-specific flags a kernel registered through kernel.FlagRegistrar
// travel instead as the forwarded argv, so they're re-parsed here, and the
// kernel's Init is then run so any state it derives from them is rebuilt.
func runWorkerChild(idx int) {
	sc, err := engine.SpawnConfigFromEnv()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	newKernel, ok := registry[sc.KernelName]
	if !ok {
		fmt.Printf("microharness: unknown kernel %q in worker environment\n", sc.KernelName)
		os.Exit(1)
	}
	k := newKernel()

	if fr, ok := k.(kernel.FlagRegistrar); ok {
		fs := pflag.NewFlagSet(sc.KernelName, pflag.ContinueOnError)
		fs.ParseErrorsWhitelist.UnknownFlags = true
		options.Default().Register(fs)
		fr.RegisterFlags(fs)
		_ = fs.Parse(os.Args[2:])
	}
	if _, err := k.Init(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if err := engine.RunChild(k, sc, idx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// newBenchCommand builds the cobra subcommand for one registered kernel:
// the harness's own flags (internal/options) plus whatever the kernel
// itself registers via kernel.FlagRegistrar.
func newBenchCommand(k kernel.Kernel, name string) *cobra.Command {
	cfg := options.Default()
	cfg.KernelName = name
	var metricsAddr string

	benchCmd := &cobra.Command{
		Use:   name,
		Short: "run the " + name + " kernel",
		RunE: func(cc *cobra.Command, args []string) error {
			if cfg.PrintVersionAndExit {
				fmt.Println(VersionString())
				return nil
			}

			cfg.RawArgs = os.Args[1:]

			warning, err := cfg.Finalize()
			logger, ctx, cancel := setupCommand(context.Background(), cfg.DebugVerbosity)
			defer cancel()
			if warning != "" {
				logger.Warn(warning)
			}
			if err != nil {
				return err
			}

			result := harness.Run(cfg, k, os.Stdout, logger)
			if result.Err != nil {
				logger.Error("run failed", result.Err)
				os.Exit(1)
			}

			if metricsAddr != "" {
				collector := metrics.New()
				collector.Observe(result.OverheadNS, result.ResolutionNS, result.Batches, result.ErrorsTotal, result.QuantErrors)
				logger.Info(fmt.Sprintf("serving metrics on %s until interrupted", metricsAddr))
				if err := metrics.Serve(ctx, metricsAddr, collector); err != nil {
					logger.Error("metrics server exited", err)
				}
			}
			os.Exit(result.ExitCode)
			return nil
		},
	}

	cfg.Register(benchCmd.Flags())
	benchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address after the run completes, until interrupted (empty = disabled)")
	if fr, ok := k.(kernel.FlagRegistrar); ok {
		fr.RegisterFlags(benchCmd.Flags())
	}
	return benchCmd
}

// setupCommand creates a logger and a cancellable context, adapted from
// the teacher repo's own setupCommand: a goroutine watches for
// SIGINT/SIGTERM and cancels ctx. pkg/harness.Run does not take ctx
// (termination is driven by the barrier's own deadline, spec.md §4.5), so
// a signal received during the run is logged and cancels ctx but does not
// stop the run; ctx only ends the optional metrics server.
func setupCommand(ctx context.Context, verbosity int) (log.Logger, context.Context, context.CancelFunc) {
	logger := log.New(log.ParseLevel(verbosity))
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			logger.Warn(fmt.Sprintf("received %s, shutting down", sig))
			cancel()
		case <-ctx.Done():
			return
		}
	}()

	return logger, ctx, cancel
}
