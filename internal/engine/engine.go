// Package engine wires the metadata oracle, hardlink tracker, entry
// pipeline, and traversal scheduler together into the single operation
// the CLI drives: copy one local source tree to one local destination
// tree.
package engine

import (
	"context"
	"fmt"

	"github.com/rclone/arsync/internal/config"
	"github.com/rclone/arsync/internal/direntry"
	"github.com/rclone/arsync/internal/hardlink"
	"github.com/rclone/arsync/internal/ioring"
	"github.com/rclone/arsync/internal/pipeline"
	"github.com/rclone/arsync/internal/stats"
	"github.com/rclone/arsync/internal/syncerr"
	"github.com/rclone/arsync/internal/walk"
)

// Result is the outcome of one Run: the accumulated per-entry errors
// (if any) and a snapshot of the run's counters.
type Result struct {
	Errors *syncerr.Accumulator
	Stats  stats.Snapshot
}

// Run performs one full local-to-local copy per opt. A non-nil error is
// returned only when the facade itself could not be constructed - a
// per-entry failure is reported via Result.Errors instead, per the
// propagation policy.
func Run(ctx context.Context, opt config.Options) (Result, error) {
	facade, err := ioring.New(opt.QueueDepth, opt.FallbackWorkers)
	if err != nil {
		return Result{}, fmt.Errorf("build io submission facade: %w", err)
	}
	defer facade.Close()

	p := &pipeline.Pipeline{
		Facade: facade,
		Links:  hardlink.New(),
		Opts: pipeline.Options{
			Archive:          opt.Archive,
			PreserveXattrs:   opt.PreserveXattrs,
			PreserveACL:      opt.PreserveACL,
			PreserveHardlink: opt.PreserveHardlink,
			CopyDevices:      opt.CopyDevices,
			OneFilesystem:    opt.OneFilesystem,
			Durable:          opt.Durable,
		},
	}

	caps := direntry.Capabilities{Xattrs: opt.PreserveXattrs, ACL: opt.PreserveACL}
	scheduler := walk.New(p, caps, walk.Limits{MaxInFlightOps: opt.MaxInFlightOps, MaxOpenFDs: opt.MaxOpenFDs})

	if err := scheduler.Walk(ctx, opt.Source, opt.Destination); err != nil {
		scheduler.Errors.Add(err)
	}
	return Result{Errors: scheduler.Errors, Stats: scheduler.Stats.Snapshot()}, nil
}
