// Package walk implements the traversal scheduler (C6): a bounded-
// concurrency walk of the source tree with backpressure on in-flight
// operations and open descriptors, cancellation propagation, and
// deferred directory metadata application until every child has
// committed.
package walk

import (
	"context"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/rclone/arsync/internal/direntry"
	"github.com/rclone/arsync/internal/pipeline"
	"github.com/rclone/arsync/internal/rlog"
	"github.com/rclone/arsync/internal/stats"
	"github.com/rclone/arsync/internal/syncerr"
)

// Limits bounds the two global admission counters: in-flight I/O
// operations and open file descriptors. MaxInFlightOps is charged once per
// entry processed; MaxOpenFDs is charged only while a directory is being
// listed. The descriptors a file copy opens are not charged against
// MaxOpenFDs, so they are bounded only through MaxInFlightOps.
type Limits struct {
	MaxInFlightOps int64
	MaxOpenFDs     int64
}

// DefaultLimits matches the scale the concrete "small-file fan-out"
// scenario exercises.
var DefaultLimits = Limits{MaxInFlightOps: 256, MaxOpenFDs: 128}

// Scheduler drives a recursive, concurrency-bounded walk of one source
// tree, dispatching each entry to the pipeline.
type Scheduler struct {
	Pipeline *pipeline.Pipeline
	Caps     direntry.Capabilities
	Errors   *syncerr.Accumulator
	Stats    *stats.Counters

	ops *semaphore.Weighted
	fds *semaphore.Weighted
}

// New builds a Scheduler with the given admission limits, sharing one
// Counters instance between the scheduler and the pipeline it drives.
func New(p *pipeline.Pipeline, caps direntry.Capabilities, limits Limits) *Scheduler {
	if p.Stats == nil {
		p.Stats = &stats.Counters{}
	}
	return &Scheduler{
		Pipeline: p,
		Caps:     caps,
		Errors:   &syncerr.Accumulator{},
		Stats:    p.Stats,
		ops:      semaphore.NewWeighted(limits.MaxInFlightOps),
		fds:      semaphore.NewWeighted(limits.MaxOpenFDs),
	}
}

// recordOutcome updates the run counters for one entry's processing
// result; a non-nil err still counts as visited, plus failed.
func (s *Scheduler) recordOutcome(err error) {
	s.Stats.IncEntriesVisited()
	if err != nil {
		s.Errors.Add(err)
		s.Stats.IncEntriesFailed()
	}
}

// Walk copies srcRoot to destRoot, recursing breadth-contending: a
// directory's children are all dispatched without waiting for each
// other, but the directory's own metadata is applied only once every
// child has reported completion, preserving its mtime.
func (s *Scheduler) Walk(ctx context.Context, srcRoot, destRoot string) error {
	rootEntry, err := direntry.Stat(unix.AT_FDCWD, srcRoot, s.Pipeline.Opts.Archive, s.Caps)
	if err != nil {
		s.Errors.Add(err)
		return err
	}
	s.Pipeline.SrcDev = rootEntry.Inode.Device

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.walkEntry(gCtx, rootEntry, destRoot)
	})
	_ = g.Wait() // per-entry errors are accumulated, not propagated as a hard failure
	return nil
}

// walkEntry processes one entry and, for a directory, fans its children
// out concurrently before applying the directory's own metadata.
func (s *Scheduler) walkEntry(ctx context.Context, src *direntry.Entry, destPath string) error {
	if err := ctx.Err(); err != nil {
		s.Errors.Add(syncerr.NewCancelledError(src.Path))
		return nil
	}
	if err := s.ops.Acquire(ctx, 1); err != nil {
		s.Errors.Add(syncerr.NewCancelledError(src.Path))
		return nil
	}

	if src.Kind != direntry.KindDirectory {
		err := s.Pipeline.Process(src, destPath)
		s.ops.Release(1)
		s.recordOutcome(err)
		return nil
	}

	err := s.Pipeline.Process(src, destPath)
	s.ops.Release(1)
	s.recordOutcome(err)
	if err != nil && syncerr.IsDirectoryPrune(err) {
		rlog.Errorf(src.Path, "pruning subtree: %v", err)
		return nil
	}
	if s.Pipeline.Opts.OneFilesystem && src.Inode.Device != s.Pipeline.SrcDev {
		// Process skipped this directory as another filesystem; do not
		// descend into it.
		return nil
	}

	names, err := s.listDir(src.Path)
	if err != nil {
		s.Errors.Add(syncerr.NewLookupError(src.Path, err))
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			childSrc := filepath.Join(src.Path, name)
			childEntry, err := direntry.Stat(unix.AT_FDCWD, childSrc, false, s.Caps)
			if err != nil {
				s.Errors.Add(err)
				return nil
			}
			return s.walkEntry(gCtx, childEntry, filepath.Join(destPath, name))
		})
	}
	_ = g.Wait()

	if applyErr := s.Pipeline.ApplyDirMetadata(src, destPath); applyErr != nil {
		s.Errors.Add(applyErr)
	}
	return nil
}

// listDir lists path's children through the facade (open-at + getdents),
// rather than the standard library, so directory traversal touches the
// kernel only through the one surface the rest of the tree uses.
func (s *Scheduler) listDir(path string) ([]string, error) {
	if err := s.fds.Acquire(context.Background(), 1); err != nil {
		return nil, err
	}
	defer s.fds.Release(1)

	fd, err := s.Pipeline.Facade.OpenAt(unix.AT_FDCWD, path, unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	raw, err := s.Pipeline.Facade.Getdents(fd)
	if err != nil {
		return nil, err
	}
	names := raw[:0]
	for _, name := range raw {
		if name == "." || name == ".." {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
