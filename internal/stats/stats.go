// Package stats implements the run-level counters (A4): bytes
// transferred, entries visited, links created, and errors, accumulated
// over a traversal and surfaced at the end of a run.
package stats

import "sync/atomic"

// Counters is safe for concurrent use; every field is updated with a
// single atomic add, never under a lock, matching the accounting style
// the rest of this tree uses for hot-path counters.
type Counters struct {
	bytesWritten  int64
	bytesSparse   int64
	entriesVisited int64
	entriesLinked  int64
	entriesFailed  int64
}

// AddBytesWritten records n bytes actually written to a destination.
func (c *Counters) AddBytesWritten(n int64) { atomic.AddInt64(&c.bytesWritten, n) }

// AddBytesSparse records n bytes of hole preserved rather than written.
func (c *Counters) AddBytesSparse(n int64) { atomic.AddInt64(&c.bytesSparse, n) }

// IncEntriesVisited records one more entry dispatched by the scheduler.
func (c *Counters) IncEntriesVisited() { atomic.AddInt64(&c.entriesVisited, 1) }

// IncEntriesLinked records one more hardlink created instead of copied.
func (c *Counters) IncEntriesLinked() { atomic.AddInt64(&c.entriesLinked, 1) }

// IncEntriesFailed records one more entry that failed and was
// accumulated rather than retried.
func (c *Counters) IncEntriesFailed() { atomic.AddInt64(&c.entriesFailed, 1) }

// Snapshot is an immutable point-in-time read of Counters.
type Snapshot struct {
	BytesWritten   int64
	BytesSparse    int64
	EntriesVisited int64
	EntriesLinked  int64
	EntriesFailed  int64
}

// Snapshot returns the current values of every counter.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BytesWritten:   atomic.LoadInt64(&c.bytesWritten),
		BytesSparse:    atomic.LoadInt64(&c.bytesSparse),
		EntriesVisited: atomic.LoadInt64(&c.entriesVisited),
		EntriesLinked:  atomic.LoadInt64(&c.entriesLinked),
		EntriesFailed:  atomic.LoadInt64(&c.entriesFailed),
	}
}
