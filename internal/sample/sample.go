// Package sample implements the sample aggregator (component C6, spec.md
// §4.6): folding each worker's per-batch result into the current phase's
// accumulator, and the final-arriver computation that turns the phase's
// wall-clock span into one reported per-call latency. Kept free of any
// shared-memory or locking concern so it is trivially unit-testable;
// internal/barrier calls it from inside the last-arriver path while
// holding the barrier's spinlock.
package sample

import "math"

// Result is what a worker reports into queue() for the exit rendezvous of
// one batch (PerSampleResult, spec.md §3). t1 >= t0 is an invariant the
// caller (internal/engine) is responsible for.
type Result struct {
	T0Ns   int64
	T1Ns   int64
	Count  int64
	Errors int64
}

// Accumulator is the barrier's transient per-phase aggregation state: the
// subset of Barrier fields spec.md §4.6 describes as "current-sample
// accumulators".
type Accumulator struct {
	T0Min     int64
	T1Max     int64
	CountSum  int64
	ErrorsSum int64
}

// Arrive folds one worker's Result into acc. arrivalIndex is the number of
// workers that had already arrived in this phase before this one (0 for
// the first arriver), which selects between the "first arriver"
// (initialize) and "intermediate arriver" (fold-in) cases of spec.md §4.6.
func Arrive(acc *Accumulator, arrivalIndex int64, r Result) {
	if arrivalIndex == 0 {
		acc.T0Min = r.T0Ns
		acc.T1Max = r.T1Ns
		acc.CountSum = r.Count
		acc.ErrorsSum = r.Errors
		return
	}
	if r.T0Ns < acc.T0Min {
		acc.T0Min = r.T0Ns
	}
	if r.T1Ns > acc.T1Max {
		acc.T1Max = r.T1Ns
	}
	acc.CountSum += r.Count
	acc.ErrorsSum += r.Errors
}

// Commit is the final-arriver computation's result (spec.md §4.6):
// the normalized per-call latency in nanoseconds, and whether this
// sample's span was too short to trust against clock resolution.
type Commit struct {
	SpanNS     int64
	NsPerCall  float64
	QuantError bool
}

// Finalize computes span := t1_max - t0_min - overhead_ns, flags
// quantization when span is below 100x the clock resolution, and
// normalizes the per-call cost by the worker count — "as if the workers
// were serialized" (spec.md §4.6 rationale).
func Finalize(acc Accumulator, overheadNS, resolutionNS int64, numProcs, numThreads int) Commit {
	span := acc.T1Max - acc.T0Min - overheadNS
	c := Commit{SpanNS: span}
	if resolutionNS > 0 && span < 100*resolutionNS {
		c.QuantError = true
	}
	if acc.CountSum <= 0 {
		c.NsPerCall = math.NaN()
		return c
	}
	c.NsPerCall = float64(span) / float64(acc.CountSum) * float64(numProcs*numThreads)
	return c
}
