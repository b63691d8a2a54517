// Package barrier implements the phase barrier (component C4, spec.md
// §4.4): a cross-process/thread re-entrant rendezvous with a per-sample
// last-arriver commit. Go has no PROCESS_SHARED pthread mutex/condvar, so
// this is the spin/park "alternate implementation" spec.md §4.4 and §9
// sanction: every field lives in a byte region shared via mmap
// (internal/arena) and is mutated through atomic compare-and-swap and
// load/store, guarded by a single spinlock word reserved in the header.
// The ordering guarantees of §4.4 hold because every access to a header
// field is an atomic hardware operation, which is visible across process
// boundaries exactly as it would be within one process.
package barrier

import (
	"math"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"microharness/internal/sample"
)

const (
	fieldLock = iota
	fieldHWM
	fieldWaiters
	fieldPhase
	fieldFlag
	fieldStartTimeNS
	fieldDeadlineNS
	fieldEndTimeNS
	fieldT0Min
	fieldT1Max
	fieldCountSum
	fieldErrorsSum
	fieldCountTotal
	fieldErrorsTotal
	fieldBatches
	fieldQuantErrors
	fieldDatasize
	numHeaderFields
)

// HeaderSize is the byte length of the fixed barrier header that precedes
// the data ring (spec.md §3); internal/arena sizes its mapping against
// this constant.
const HeaderSize = numHeaderFields * 8

// Barrier is a view over a shared byte region: HeaderSize bytes of header
// fields followed by a ring of float64 latencies (spec.md §3 "data").
type Barrier struct {
	region       []byte
	numProcs     int
	numThreads   int
	overheadNS   int64
	resolutionNS int64
	minSamples   int64
}

// New initializes a fresh barrier header in region and returns a Barrier
// over it. Called once by the parent, before any worker is spawned.
func New(region []byte, hwm, datasize int64, numProcs, numThreads int, overheadNS, resolutionNS, minSamples, durationMS, startTimeNS int64) *Barrier {
	b := &Barrier{
		region:       region,
		numProcs:     numProcs,
		numThreads:   numThreads,
		overheadNS:   overheadNS,
		resolutionNS: resolutionNS,
		minSamples:   minSamples,
	}
	b.store(fieldLock, 0)
	b.store(fieldHWM, hwm)
	b.store(fieldWaiters, 0)
	b.store(fieldPhase, 0)
	b.store(fieldFlag, 1)
	b.store(fieldStartTimeNS, startTimeNS)
	b.store(fieldDeadlineNS, startTimeNS+durationMS*1_000_000)
	b.store(fieldEndTimeNS, 0)
	b.store(fieldT0Min, 0)
	b.store(fieldT1Max, 0)
	b.store(fieldCountSum, 0)
	b.store(fieldErrorsSum, 0)
	b.store(fieldCountTotal, 0)
	b.store(fieldErrorsTotal, 0)
	b.store(fieldBatches, 0)
	b.store(fieldQuantErrors, 0)
	b.store(fieldDatasize, datasize)
	return b
}

// Attach wraps an already-initialized region. Used by re-exec'd worker
// processes, which never call New.
func Attach(region []byte, numProcs, numThreads int, overheadNS, resolutionNS, minSamples int64) *Barrier {
	return &Barrier{
		region:       region,
		numProcs:     numProcs,
		numThreads:   numThreads,
		overheadNS:   overheadNS,
		resolutionNS: resolutionNS,
		minSamples:   minSamples,
	}
}

func (b *Barrier) slot(i int) *int64 {
	return (*int64)(unsafe.Pointer(&b.region[i*8]))
}

func (b *Barrier) load(i int) int64             { return atomic.LoadInt64(b.slot(i)) }
func (b *Barrier) store(i int, v int64)         { atomic.StoreInt64(b.slot(i), v) }
func (b *Barrier) add(i int, d int64) int64     { return atomic.AddInt64(b.slot(i), d) }
func (b *Barrier) cas(i int, old, nw int64) bool { return atomic.CompareAndSwapInt64(b.slot(i), old, nw) }

func (b *Barrier) ringPtr(k int64) *uint64 {
	off := HeaderSize + int(k)*8
	return (*uint64)(unsafe.Pointer(&b.region[off]))
}

func (b *Barrier) setRing(k int64, v float64) {
	atomic.StoreUint64(b.ringPtr(k), math.Float64bits(v))
}

func (b *Barrier) getRing(k int64) float64 {
	return math.Float64frombits(atomic.LoadUint64(b.ringPtr(k)))
}

func (b *Barrier) lock() {
	for !b.cas(fieldLock, 0, 1) {
		runtime.Gosched()
	}
}

func (b *Barrier) unlock() {
	atomic.StoreInt64(b.slot(fieldLock), 0)
}

// Flag reports whether the run is still active. The worker loop checks
// this at the top of every iteration (spec.md §4.5).
func (b *Barrier) Flag() bool { return b.load(fieldFlag) == 1 }

// Queue implements the queue() operation (spec.md §4.4). Call it with
// r == nil for the entry rendezvous (step c of §4.5's worker loop) and
// with the batch's sample.Result for the exit rendezvous (step e), which
// also commits the sample and may decide termination. t1 is the caller's
// own exit timestamp, used only on the exit rendezvous to evaluate the
// deadline (spec.md §4.5's termination rule is consulted by whichever
// worker turns out to be the last arriver, using its own t1).
func (b *Barrier) Queue(isExit bool, r *sample.Result, t1 int64) {
	b.lock()

	var arrivalIndex int64
	if isExit {
		arrivalIndex = b.load(fieldWaiters)
		acc := sample.Accumulator{
			T0Min:     b.load(fieldT0Min),
			T1Max:     b.load(fieldT1Max),
			CountSum:  b.load(fieldCountSum),
			ErrorsSum: b.load(fieldErrorsSum),
		}
		sample.Arrive(&acc, arrivalIndex, *r)
		b.store(fieldT0Min, acc.T0Min)
		b.store(fieldT1Max, acc.T1Max)
		b.store(fieldCountSum, acc.CountSum)
		b.store(fieldErrorsSum, acc.ErrorsSum)
	}

	phase := b.load(fieldPhase)
	waiters := b.add(fieldWaiters, 1)
	hwm := b.load(fieldHWM)

	if waiters == hwm {
		if isExit {
			b.commit(t1)
		}
		b.store(fieldWaiters, 0)
		b.add(fieldPhase, 1)
		b.unlock()
		return
	}
	b.unlock()

	for b.load(fieldPhase) == phase {
		runtime.Gosched()
		time.Sleep(50 * time.Microsecond)
	}
}

// commit is the final-arriver path of spec.md §4.6: compute span, flag
// quantization, normalize the per-call latency, append it to the ring,
// and evaluate the termination condition of spec.md §4.5.
func (b *Barrier) commit(t1 int64) {
	acc := sample.Accumulator{
		T0Min:     b.load(fieldT0Min),
		T1Max:     b.load(fieldT1Max),
		CountSum:  b.load(fieldCountSum),
		ErrorsSum: b.load(fieldErrorsSum),
	}
	res := sample.Finalize(acc, b.overheadNS, b.resolutionNS, b.numProcs, b.numThreads)
	if res.QuantError {
		b.add(fieldQuantErrors, 1)
	}

	batches := b.load(fieldBatches)
	datasize := b.load(fieldDatasize)
	b.setRing(batches%datasize, res.NsPerCall)
	b.add(fieldCountTotal, acc.CountSum)
	b.add(fieldErrorsTotal, acc.ErrorsSum)
	b.store(fieldBatches, batches+1)

	deadline := b.load(fieldDeadlineNS)
	var stop bool
	if b.minSamples <= 0 {
		stop = t1 > deadline
	} else {
		stop = batches+1 >= b.minSamples && t1 > deadline
	}
	if stop {
		b.store(fieldFlag, 0)
		b.store(fieldEndTimeNS, t1)
	}
}

// Snapshot is the barrier's final state, read by the driver after every
// worker has joined.
type Snapshot struct {
	Batches     int64
	CountTotal  int64
	ErrorsTotal int64
	QuantErrors int64
	Datasize    int64
	Dropped     int64
	StartTimeNS int64
	EndTimeNS   int64
	// Data holds up to Datasize per-call latencies in nanoseconds, in the
	// ring's physical slot order (spec.md §3: once batches > datasize,
	// older slots are silently overwritten).
	Data []float64
}

// Snapshot reads the barrier's final state. Call only after every worker
// has joined (spec.md §9 "arena lifetime").
func (b *Barrier) Snapshot() Snapshot {
	batches := b.load(fieldBatches)
	datasize := b.load(fieldDatasize)
	n := batches
	if n > datasize {
		n = datasize
	}
	data := make([]float64, n)
	for i := int64(0); i < n; i++ {
		data[i] = b.getRing(i)
	}
	var dropped int64
	if batches > datasize {
		dropped = batches - datasize
	}
	return Snapshot{
		Batches:     batches,
		CountTotal:  b.load(fieldCountTotal),
		ErrorsTotal: b.load(fieldErrorsTotal),
		QuantErrors: b.load(fieldQuantErrors),
		Datasize:    datasize,
		Dropped:     dropped,
		StartTimeNS: b.load(fieldStartTimeNS),
		EndTimeNS:   b.load(fieldEndTimeNS),
		Data:        data,
	}
}
