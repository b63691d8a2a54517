// Package arena implements the harness's shared-memory region (component
// C3, spec.md §4.3): a file-backed MAP_SHARED mapping holding the phase
// barrier's header and data ring plus every worker's TSD scratch. Because
// Go cannot safely fork() after the runtime starts goroutines, the
// rectangle's worker processes are re-exec'd children (see pkg/harness)
// that each map the same backing file, which gives them the same
// visibility a POSIX anonymous shared mapping inherited across fork would.
package arena

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"microharness/internal/barrier"
	"microharness/internal/errors"
)

const (
	tsdPadding = 8192
	tsdAlign   = 128
)

// Arena is the mapped region, split into a barrier segment (header + data
// ring, component C4) and a TSD segment (component C3's per-worker
// scratch).
type Arena struct {
	file       *os.File
	path       string
	region     []byte
	barrier    []byte
	tsd        []byte
	numProcs   int
	numThreads int
	tsdStride  int
}

// RoundUp128 rounds n up to the next multiple of 128, the alignment the
// harness uses for TSD slots to avoid false sharing (spec.md §3).
func RoundUp128(n int) int {
	if n <= 0 {
		return tsdAlign
	}
	return (n + tsdAlign - 1) &^ (tsdAlign - 1)
}

func sizes(datasize int64, numProcs, numThreads, tsdSize int) (barrierSize, tsdRegionSize, total int, stride int) {
	stride = RoundUp128(tsdSize)
	barrierSize = barrier.HeaderSize + int(datasize)*8
	tsdRegionSize = numProcs*numThreads*stride + tsdPadding
	total = barrierSize + tsdRegionSize
	return
}

func mapFile(f *os.File, total int) ([]byte, error) {
	region, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.OS(err, "arena: mmap")
	}
	return region, nil
}

func wrap(f *os.File, path string, region []byte, barrierSize, numProcs, numThreads, stride int) *Arena {
	return &Arena{
		file:       f,
		path:       path,
		region:     region,
		barrier:    region[:barrierSize],
		tsd:        region[barrierSize:],
		numProcs:   numProcs,
		numThreads: numThreads,
		tsdStride:  stride,
	}
}

// Create allocates the backing file at path, sized for datasize ring
// slots and numProcs*numThreads TSD regions of tsdSize bytes each, and
// maps it MAP_SHARED. Called once by the parent before workers spawn.
func Create(path string, datasize int64, numProcs, numThreads, tsdSize int) (*Arena, error) {
	barrierSize, tsdRegionSize, total, stride := sizes(datasize, numProcs, numThreads, tsdSize)
	_ = tsdRegionSize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errors.OS(err, "arena: create %s", path)
	}
	if err := f.Truncate(int64(total)); err != nil {
		f.Close()
		return nil, errors.OS(err, "arena: truncate %s", path)
	}

	region, err := mapFile(f, total)
	if err != nil {
		f.Close()
		return nil, err
	}
	return wrap(f, path, region, barrierSize, numProcs, numThreads, stride), nil
}

// Open maps an already-created arena file. Used by re-exec'd worker
// processes, which learn the path via the MICROHARNESS_ARENA_PATH
// environment variable rather than receiving the *Arena value directly.
func Open(path string, datasize int64, numProcs, numThreads, tsdSize int) (*Arena, error) {
	barrierSize, _, total, stride := sizes(datasize, numProcs, numThreads, tsdSize)

	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.OS(err, "arena: open %s", path)
	}
	region, err := mapFile(f, total)
	if err != nil {
		f.Close()
		return nil, err
	}
	return wrap(f, path, region, barrierSize, numProcs, numThreads, stride), nil
}

// BarrierBytes exposes the raw barrier header+ring region for
// internal/barrier to interpret as atomic fields.
func (a *Arena) BarrierBytes() []byte { return a.barrier }

// TSDFor returns the (process_index, thread_index) worker's scratch
// slice, or nil if either index is out of range (spec.md §4.3).
func (a *Arena) TSDFor(p, t int) []byte {
	if p < 0 || p >= a.numProcs || t < 0 || t >= a.numThreads {
		return nil
	}
	idx := p*a.numThreads + t
	off := idx * a.tsdStride
	return a.tsd[off : off+a.tsdStride]
}

// Path returns the backing file path, passed to re-exec'd children via
// MICROHARNESS_ARENA_PATH.
func (a *Arena) Path() string { return a.path }

// Sync flushes pending writes so a child mapping the file immediately
// after creation observes a consistent header.
func (a *Arena) Sync() error {
	if err := unix.Msync(a.region, unix.MS_SYNC); err != nil {
		return errors.OS(err, "arena: msync")
	}
	return nil
}

// Close unmaps the region and closes the backing file descriptor. It does
// not remove the file; the driver removes it once every worker has
// joined (spec.md §9 "arena lifetime").
func (a *Arena) Close() error {
	if err := unix.Munmap(a.region); err != nil {
		a.file.Close()
		return errors.OS(err, "arena: munmap")
	}
	return a.file.Close()
}

// Remove deletes the backing file. Call only after every mapping of it
// (parent and children) has been Closed.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("arena: remove %s: %w", path, err)
	}
	return nil
}
