// Package engine implements the worker engine (component C5, spec.md
// §4.5): the per-thread batch loop, the per-process thread rectangle, and
// the re-exec-based process spawn that stands in for fork() (spec.md §9,
// "Process model"). Go cannot safely fork() once the runtime has started
// goroutines, so the P-process rectangle is realized by relaunching the
// harness binary itself as P children (os/exec), each mapping the same
// shared-arena backing file (internal/arena) that a real fork would have
// inherited as an anonymous mapping.
package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"microharness/internal/arena"
	"microharness/internal/barrier"
	"microharness/internal/clock"
	"microharness/internal/errors"
	"microharness/internal/sample"
	"microharness/pkg/kernel"
)

// Environment variables a spawned child reads to attach to the parent's
// shared arena and barrier without re-parsing the full CLI (spec.md §9:
// "an immutable context record passed by reference").
const (
	EnvArenaPath    = "MICROHARNESS_ARENA_PATH"
	EnvNumProcs     = "MICROHARNESS_NUM_PROCS"
	EnvNumThreads   = "MICROHARNESS_NUM_THREADS"
	EnvTSDSize      = "MICROHARNESS_TSD_SIZE"
	EnvDatasize     = "MICROHARNESS_DATASIZE"
	EnvOverheadNS   = "MICROHARNESS_OVERHEAD_NS"
	EnvResolutionNS = "MICROHARNESS_RESOLUTION_NS"
	EnvMinSamples   = "MICROHARNESS_MIN_SAMPLES"
	EnvBatchSize    = "MICROHARNESS_BATCH_SIZE"
	EnvAlignClock   = "MICROHARNESS_ALIGN_CLOCK"
	// EnvKernelName tells a re-exec'd child which of the binary's
	// registered kernels to run. Go has one CLI surface per subcommand
	// rather than per-binary fork like the original, so the child can't
	// infer this from argv alone (it only carries WorkerFlag).
	EnvKernelName = "MICROHARNESS_KERNEL"
)

// WorkerFlag prefixes the hidden argument a re-exec'd child is launched
// with: "--worker-process=<index>".
const WorkerFlag = "--worker-process"

// maxConcurrentSpawns caps how many cmd.Start calls SpawnProcesses has in
// flight at once. A slot is released as soon as Start returns, before the
// child maps its arena or starts its threads.
const maxConcurrentSpawns = 64

// WorkerThread runs one worker's batch loop (spec.md §4.5 worker_thread).
// errAcc threads the error count across InitWorker/InitBatch/FiniBatch
// exactly as spec.md describes: FiniBatch's return is carried into the
// next batch's InitBatch addition.
func WorkerThread(k kernel.Kernel, br *barrier.Barrier, tsd []byte, batchSize int64, alignClock bool) {
	errAcc := k.InitWorker(tsd)
	lastAlign := clock.NowNanos()

	for br.Flag() {
		errAcc += k.InitBatch(tsd)

		if alignClock {
			now := clock.NowNanos()
			if now-lastAlign > 75_000_000 {
				time.Sleep(10 * time.Millisecond)
				lastAlign = clock.NowNanos()
			}
		}

		br.Queue(false, nil, 0)

		t0 := clock.NowNanos()
		res := k.Run(tsd, batchSize)
		t1 := clock.NowNanos()

		br.Queue(true, &sample.Result{
			T0Ns:   t0,
			T1Ns:   t1,
			Count:  res.Count,
			Errors: errAcc + res.Errors,
		}, t1)

		errAcc = k.FiniBatch(tsd)
	}

	k.FiniWorker(tsd)
}

// RunProcess runs every thread of one worker process: num_threads-1
// helper goroutines plus the calling goroutine for thread 0, then joins
// the helpers via golang.org/x/sync/errgroup (spec.md §4.5: "runs
// worker_thread(tsd(p,0)) inline; joins the helpers").
func RunProcess(k kernel.Kernel, ar *arena.Arena, br *barrier.Barrier, processIndex, numThreads int, batchSize int64, alignClock bool) error {
	g := new(errgroup.Group)
	for t := 1; t < numThreads; t++ {
		tsd := ar.TSDFor(processIndex, t)
		g.Go(func() error {
			WorkerThread(k, br, tsd, batchSize, alignClock)
			return nil
		})
	}
	WorkerThread(k, br, ar.TSDFor(processIndex, 0), batchSize, alignClock)
	return g.Wait()
}

// SpawnConfig is what a re-exec'd child needs to attach to the shared
// arena/barrier and run its rectangle row.
type SpawnConfig struct {
	ArenaPath string
	// ExtraArgs is the original invocation's argv, forwarded to each
	// worker child after its "--worker-process=<index>" flag so the
	// child can reconstruct any kernel-specific flags (cmd/'s
	// runWorkerChild does this); it is never read from the environment.
	ExtraArgs    []string
	KernelName   string
	NumProcs     int
	NumThreads   int
	TSDSize      int
	Datasize     int64
	OverheadNS   int64
	ResolutionNS int64
	MinSamples   int64
	BatchSize    int64
	AlignClock   bool
}

// Env renders sc as KEY=VALUE pairs for exec.Cmd.Env.
func (sc SpawnConfig) Env() []string {
	return []string{
		EnvArenaPath + "=" + sc.ArenaPath,
		EnvKernelName + "=" + sc.KernelName,
		EnvNumProcs + "=" + strconv.Itoa(sc.NumProcs),
		EnvNumThreads + "=" + strconv.Itoa(sc.NumThreads),
		EnvTSDSize + "=" + strconv.Itoa(sc.TSDSize),
		EnvDatasize + "=" + strconv.FormatInt(sc.Datasize, 10),
		EnvOverheadNS + "=" + strconv.FormatInt(sc.OverheadNS, 10),
		EnvResolutionNS + "=" + strconv.FormatInt(sc.ResolutionNS, 10),
		EnvMinSamples + "=" + strconv.FormatInt(sc.MinSamples, 10),
		EnvBatchSize + "=" + strconv.FormatInt(sc.BatchSize, 10),
		EnvAlignClock + "=" + strconv.FormatBool(sc.AlignClock),
	}
}

// SpawnConfigFromEnv reconstructs a SpawnConfig from the environment a
// parent set via Env. Called by a re-exec'd child's main().
func SpawnConfigFromEnv() (SpawnConfig, error) {
	var sc SpawnConfig
	sc.ArenaPath = os.Getenv(EnvArenaPath)
	if sc.ArenaPath == "" {
		return sc, errors.Config("engine: %s not set in worker environment", EnvArenaPath)
	}
	sc.KernelName = os.Getenv(EnvKernelName)

	var err error
	if sc.NumProcs, err = strconv.Atoi(os.Getenv(EnvNumProcs)); err != nil {
		return sc, errors.Config("engine: invalid %s: %v", EnvNumProcs, err)
	}
	if sc.NumThreads, err = strconv.Atoi(os.Getenv(EnvNumThreads)); err != nil {
		return sc, errors.Config("engine: invalid %s: %v", EnvNumThreads, err)
	}
	if sc.TSDSize, err = strconv.Atoi(os.Getenv(EnvTSDSize)); err != nil {
		return sc, errors.Config("engine: invalid %s: %v", EnvTSDSize, err)
	}
	if sc.Datasize, err = strconv.ParseInt(os.Getenv(EnvDatasize), 10, 64); err != nil {
		return sc, errors.Config("engine: invalid %s: %v", EnvDatasize, err)
	}
	if sc.OverheadNS, err = strconv.ParseInt(os.Getenv(EnvOverheadNS), 10, 64); err != nil {
		return sc, errors.Config("engine: invalid %s: %v", EnvOverheadNS, err)
	}
	if sc.ResolutionNS, err = strconv.ParseInt(os.Getenv(EnvResolutionNS), 10, 64); err != nil {
		return sc, errors.Config("engine: invalid %s: %v", EnvResolutionNS, err)
	}
	if sc.MinSamples, err = strconv.ParseInt(os.Getenv(EnvMinSamples), 10, 64); err != nil {
		return sc, errors.Config("engine: invalid %s: %v", EnvMinSamples, err)
	}
	if sc.BatchSize, err = strconv.ParseInt(os.Getenv(EnvBatchSize), 10, 64); err != nil {
		return sc, errors.Config("engine: invalid %s: %v", EnvBatchSize, err)
	}
	sc.AlignClock, _ = strconv.ParseBool(os.Getenv(EnvAlignClock))
	return sc, nil
}

// SpawnProcesses re-execs the current binary sc.NumProcs times, each
// carrying "--worker-process=<index>" and sc's fields as environment
// variables, and waits for all of them. A non-zero child exit is fatal to
// the driver (spec.md §4.5).
func SpawnProcesses(ctx context.Context, sc SpawnConfig) error {
	exe, err := os.Executable()
	if err != nil {
		return errors.OS(err, "engine: resolve executable path")
	}

	// sem throttles the burst of simultaneous fork+exec calls, not
	// steady-state concurrency: every process must still run at once for
	// the barrier's rendezvous to complete, so the semaphore is released
	// right after Start rather than after the process exits.
	sem := semaphore.NewWeighted(maxConcurrentSpawns)
	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < sc.NumProcs; p++ {
		p := p
		if err := sem.Acquire(ctx, 1); err != nil {
			return errors.OS(err, "engine: acquire spawn slot for worker %d", p)
		}
		g.Go(func() error {
			argv := append([]string{fmt.Sprintf("%s=%d", WorkerFlag, p)}, sc.ExtraArgs...)
			cmd := exec.CommandContext(ctx, exe, argv...)
			cmd.Env = append(os.Environ(), sc.Env()...)
			cmd.Stdout = os.Stderr
			cmd.Stderr = os.Stderr
			if err := cmd.Start(); err != nil {
				sem.Release(1)
				return errors.OS(err, "engine: start worker process %d", p)
			}
			sem.Release(1)
			if err := cmd.Wait(); err != nil {
				return errors.OS(err, "engine: worker process %d", p)
			}
			return nil
		})
	}
	return g.Wait()
}

// RunChild is the entry point a re-exec'd child's main() calls: it
// attaches to the shared arena/barrier sc describes and runs its
// rectangle row.
func RunChild(k kernel.Kernel, sc SpawnConfig, processIndex int) error {
	ar, err := arena.Open(sc.ArenaPath, sc.Datasize, sc.NumProcs, sc.NumThreads, sc.TSDSize)
	if err != nil {
		return err
	}
	defer ar.Close()

	br := barrier.Attach(ar.BarrierBytes(), sc.NumProcs, sc.NumThreads, sc.OverheadNS, sc.ResolutionNS, sc.MinSamples)
	return RunProcess(k, ar, br, processIndex, sc.NumThreads, sc.BatchSize, sc.AlignClock)
}
