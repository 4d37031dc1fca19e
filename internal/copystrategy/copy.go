// Package copystrategy implements the copy strategy (C5): for a regular
// file, preallocate the destination, hint access patterns to the kernel,
// prefer an in-kernel range copy when source and destination share a
// filesystem, fall back to a windowed read->write pipeline of
// facade-owned buffers otherwise, and propagate sparse holes rather than
// writing zeros for them.
package copystrategy

import (
	"context"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/rclone/arsync/internal/ioring"
	"github.com/rclone/arsync/internal/rlog"
	"github.com/rclone/arsync/internal/syncerr"
)

// bufferSize is the fixed owned-buffer size for the buffered pipeline
// path, matching the spec's "typically 1 MiB" guidance.
const bufferSize = 1 << 20

// inFlightWindow is the small per-file in-flight buffer count for the
// buffered pipeline, matching the spec's "typically 4" guidance: up to
// this many read->write chunks are outstanding on the facade at once.
const inFlightWindow = 4

// fallocFlags mirrors the teacher's fallback ladder for filesystems (e.g.
// ZFS) that reject FALLOC_FL_KEEP_SIZE alone.
var fallocFlags = [...]uint32{
	unix.FALLOC_FL_KEEP_SIZE,
	unix.FALLOC_FL_KEEP_SIZE | unix.FALLOC_FL_PUNCH_HOLE,
}

// Result is returned by Copy.
type Result struct {
	BytesWritten  int64
	BytesSparse   int64
	UsedRangeCopy bool
}

// Copy runs the full C5 procedure: preallocate, hint, copy (range-copy or
// buffered), and returns the number of bytes written for checksumming by
// higher layers. The destination is not fsync'd unless durable is set.
func Copy(facade *ioring.Facade, src, dst *os.File, size int64, sameFilesystem, durable bool, path string) (Result, error) {
	preallocate(facade, dst, size)
	// Set the destination's length up front: FALLOC_FL_KEEP_SIZE leaves
	// it unchanged, and the buffered path below deliberately skips
	// writing a trailing hole, so without this the file would come up
	// short whenever the source ends in one.
	if err := facade.Ftruncate(int(dst.Fd()), size); err != nil {
		return Result{}, syncerr.NewTransferError(path, 0, err)
	}
	hintAccessPatterns(facade, src, dst, size)

	var (
		written int64
		sparse  int64
		err     error
		usedRC  bool
	)
	if sameFilesystem {
		written, err = rangeCopy(facade, src, dst, size)
		usedRC = err == nil
	}
	if !usedRC {
		written, sparse, err = bufferedCopy(facade, src, dst, size, path)
	}
	if err != nil {
		return Result{BytesWritten: written, BytesSparse: sparse}, err
	}

	if durable {
		if err := facade.Fsync(int(dst.Fd()), false); err != nil {
			return Result{BytesWritten: written, BytesSparse: sparse}, syncerr.NewTransferError(path, written, err)
		}
	}
	return Result{BytesWritten: written, BytesSparse: sparse, UsedRangeCopy: usedRC}, nil
}

// preallocate tries each flag combination in fallocFlags in turn, moving
// to the next permanently (process-wide) the first time ENOTSUP is seen
// so later calls on the same filesystem don't repeat a doomed syscall.
var fallocFlagsIndex int32

func preallocate(facade *ioring.Facade, dst *os.File, size int64) {
	if size <= 0 {
		return
	}
	idx := fallocFlagsIndex
	for idx < int32(len(fallocFlags)) {
		err := facade.Fallocate(int(dst.Fd()), fallocFlags[idx], 0, size)
		if err == nil {
			return
		}
		if err != unix.ENOTSUP {
			rlog.Debugf(dst.Name(), "fallocate failed: %v", err)
			return
		}
		idx++
		fallocFlagsIndex = idx
	}
}

func hintAccessPatterns(facade *ioring.Facade, src, dst *os.File, size int64) {
	if err := facade.Fadvise(int(src.Fd()), 0, size, unix.FADV_SEQUENTIAL); err != nil {
		rlog.Debugf(src.Name(), "fadvise sequential failed: %v", err)
	}
	if err := facade.Fadvise(int(dst.Fd()), 0, size, unix.FADV_DONTNEED); err != nil {
		rlog.Debugf(dst.Name(), "fadvise dontneed failed: %v", err)
	}
}

// rangeCopy issues repeated in-kernel range-copy calls until size bytes
// have moved or a short count stalls, continuing from the next offset on
// each short copy.
func rangeCopy(facade *ioring.Facade, src, dst *os.File, size int64) (int64, error) {
	var off int64
	for off < size {
		n, err := facade.RangeCopy(int(src.Fd()), off, int(dst.Fd()), off, int(size-off))
		if err != nil {
			return off, err
		}
		if n == 0 {
			return off, unix.EXDEV
		}
		off += int64(n)
	}
	return off, nil
}

// dataRun is a contiguous extent of the source that holds data, as
// opposed to a hole; bufferedCopy reads and writes only these extents.
type dataRun struct {
	off, end int64
}

// bufferedCopy drives a read->write pipeline of fixed-size owned buffers
// through the facade - the same surface rangeCopy and every other kernel
// touch in this tree goes through - skipping over sparse source holes
// (detected via SEEK_DATA/SEEK_HOLE) so the destination region is left
// sparse rather than zero-filled, including a hole that runs to EOF.
// Within each data run, up to inFlightWindow chunks are read and written
// concurrently so the facade always has more than one operation
// outstanding.
func bufferedCopy(facade *ioring.Facade, src, dst *os.File, size int64, path string) (written int64, sparse int64, err error) {
	srcFd, dstFd := int(src.Fd()), int(dst.Fd())

	runs, sparseBytes, planErr := planDataRuns(facade, srcFd, dstFd, size, path)
	sparse = sparseBytes
	if planErr != nil {
		return 0, sparse, planErr
	}

	for _, run := range runs {
		if run.off >= run.end {
			continue
		}
		n, err := copyRun(facade, srcFd, dstFd, run, path)
		written += n
		if err != nil {
			return written, sparse, err
		}
	}
	return written, sparse, nil
}

// planDataRuns walks the whole file with SEEK_DATA/SEEK_HOLE, punching
// every hole it finds on dst (through the facade) and returning the list
// of data extents still needing an actual copy. A hole that extends to
// EOF (SEEK_DATA reporting ENXIO) is punched for its full remaining
// length rather than falling through to a zero-filling read, so a
// trailing hole never gets materialized on the destination.
func planDataRuns(facade *ioring.Facade, srcFd, dstFd int, size int64, path string) (runs []dataRun, sparse int64, err error) {
	pos := int64(0)
	for pos < size {
		dataStart, holeToEOF, serr := seekData(srcFd, pos)
		if serr != nil {
			// Sparse probing unsupported on this filesystem (e.g. tmpfs
			// predating hole support); treat the remainder as one run.
			runs = append(runs, dataRun{pos, size})
			return runs, sparse, nil
		}
		if holeToEOF {
			sparse += punchHole(facade, dstFd, pos, size-pos, path)
			return runs, sparse, nil
		}
		if dataStart > pos {
			sparse += punchHole(facade, dstFd, pos, dataStart-pos, path)
			pos = dataStart
		}

		dataEnd, herr := seekHole(srcFd, pos, size)
		if herr != nil {
			dataEnd = size
		}
		runs = append(runs, dataRun{pos, dataEnd})
		pos = dataEnd
	}
	return runs, sparse, nil
}

// punchHole deallocates [off, off+length) on dstFd and returns length on
// success, or 0 if the filesystem rejected the call. Either way the
// region is not part of any data run, so copyRun never writes it; it
// stays unwritten on dst and reads back as zeros.
func punchHole(facade *ioring.Facade, dstFd int, off, length int64, path string) int64 {
	if length <= 0 {
		return 0
	}
	if err := facade.Fallocate(dstFd, unix.FALLOC_FL_KEEP_SIZE|unix.FALLOC_FL_PUNCH_HOLE, off, length); err != nil {
		rlog.Debugf(path, "punch hole failed: %v", err)
		return 0
	}
	return length
}

// seekData reports the offset of the next data byte at or after pos. A
// kernel ENXIO means there is no more data before EOF, i.e. the
// remainder of the file is a single trailing hole.
func seekData(fd int, pos int64) (dataStart int64, holeToEOF bool, err error) {
	off, err := unix.Seek(fd, pos, unix.SEEK_DATA)
	if err == unix.ENXIO {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return off, false, nil
}

// seekHole reports where the data run starting at pos ends: the next
// hole, or size if SEEK_HOLE reports none before EOF.
func seekHole(fd int, pos, size int64) (int64, error) {
	off, err := unix.Seek(fd, pos, unix.SEEK_HOLE)
	if err != nil {
		return 0, err
	}
	if off > size {
		off = size
	}
	return off, nil
}

// copyRun copies one contiguous data extent through the facade, fanning
// its chunks across a bounded window of owned buffers.
func copyRun(facade *ioring.Facade, srcFd, dstFd int, run dataRun, path string) (int64, error) {
	sem := semaphore.NewWeighted(inFlightWindow)
	g, ctx := errgroup.WithContext(context.Background())
	var written int64

	for off := run.off; off < run.end; off += bufferSize {
		off := off
		n := bufferSize
		if remaining := run.end - off; remaining < int64(n) {
			n = int(remaining)
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			buf := make([]byte, n)
			rn, rerr := facade.Read(srcFd, buf, off)
			if rn == 0 && rerr != nil {
				return syncerr.NewTransferError(path, off, rerr)
			}
			if _, werr := facade.Write(dstFd, buf[:rn], off); werr != nil {
				return syncerr.NewTransferError(path, off, werr)
			}
			atomic.AddInt64(&written, int64(rn))
			return nil
		})
	}

	err := g.Wait()
	return atomic.LoadInt64(&written), err
}
