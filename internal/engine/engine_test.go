package engine

import (
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microharness/internal/arena"
	"microharness/internal/barrier"
	"microharness/pkg/kernel"
)

// countingKernel runs a fixed number of batches, then signals the barrier
// to stop by never clearing its own flag directly (the barrier itself
// owns termination); it counts lifecycle calls so tests can assert
// ordering and error-accumulation threading.
type countingKernel struct {
	kernel.Base
	runCalls       int64
	initWorkerCall int64
	finiWorkerCall int64
	batchErrors    int64
}

func (k *countingKernel) InitWorker([]byte) int64 {
	atomic.AddInt64(&k.initWorkerCall, 1)
	return 1
}

func (k *countingKernel) InitBatch([]byte) int64 {
	return 2
}

func (k *countingKernel) Run(tsd []byte, batchSize int64) kernel.Result {
	atomic.AddInt64(&k.runCalls, 1)
	return kernel.Result{Count: batchSize, Errors: 0}
}

func (k *countingKernel) FiniBatch([]byte) int64 {
	atomic.AddInt64(&k.batchErrors, 1)
	return 0
}

func (k *countingKernel) FiniWorker([]byte) {
	atomic.AddInt64(&k.finiWorkerCall, 1)
}

func TestWorkerThreadRunsUntilBarrierFlagClears(t *testing.T) {
	region := make([]byte, barrier.HeaderSize+8*8)
	// minSamples=3 with a zero-length deadline window (already elapsed by
	// the time the first real clock.NowNanos() reading comes in): the
	// barrier stops itself once three batches have committed, which is
	// what drives WorkerThread's loop exit in this single-worker case.
	b := barrier.New(region, 1, 8, 1, 1, 0, 1, 3, 0, 0)

	k := &countingKernel{}
	WorkerThread(k, b, make([]byte, 8), 10, false)

	assert.Equal(t, int64(1), k.initWorkerCall)
	assert.Equal(t, int64(1), k.finiWorkerCall)
	assert.GreaterOrEqual(t, k.runCalls, int64(3))
	assert.Equal(t, k.runCalls, k.batchErrors, "FiniBatch runs once per Run")
}

func TestRunProcessFansOutAcrossThreads(t *testing.T) {
	const numThreads = 4
	region := make([]byte, barrier.HeaderSize+8*8)
	b := barrier.New(region, numThreads, 8, 1, numThreads, 0, 1, 2, 0, 0)

	k := &countingKernel{}
	path := filepath.Join(t.TempDir(), "arena.bin")
	ar, err := arena.Create(path, 8, 1, numThreads, 8)
	require.NoError(t, err)
	defer ar.Close()

	err = RunProcess(k, ar, b, 0, numThreads, 5, false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, k.runCalls, int64(numThreads*2))
	assert.Equal(t, int64(numThreads), k.finiWorkerCall)
}

func TestSpawnConfigEnvRoundTrip(t *testing.T) {
	sc := SpawnConfig{
		ArenaPath:    "/tmp/arena.bin",
		KernelName:   "sleep",
		NumProcs:     2,
		NumThreads:   4,
		TSDSize:      16,
		Datasize:     1024,
		OverheadNS:   123,
		ResolutionNS: 456,
		MinSamples:   1000,
		BatchSize:    50,
		AlignClock:   true,
	}

	for _, kv := range sc.Env() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				t.Setenv(kv[:i], kv[i+1:])
				break
			}
		}
	}

	got, err := SpawnConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, sc.ArenaPath, got.ArenaPath)
	assert.Equal(t, sc.KernelName, got.KernelName)
	assert.Equal(t, sc.NumProcs, got.NumProcs)
	assert.Equal(t, sc.NumThreads, got.NumThreads)
	assert.Equal(t, sc.TSDSize, got.TSDSize)
	assert.Equal(t, sc.Datasize, got.Datasize)
	assert.Equal(t, sc.OverheadNS, got.OverheadNS)
	assert.Equal(t, sc.ResolutionNS, got.ResolutionNS)
	assert.Equal(t, sc.MinSamples, got.MinSamples)
	assert.Equal(t, sc.BatchSize, got.BatchSize)
	assert.Equal(t, sc.AlignClock, got.AlignClock)
}

func TestSpawnConfigFromEnvRequiresArenaPath(t *testing.T) {
	t.Setenv(EnvArenaPath, "")
	_, err := SpawnConfigFromEnv()
	assert.Error(t, err)
}
