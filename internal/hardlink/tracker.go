// Package hardlink implements the process-wide hardlink tracker (C3): a
// map from inode identity to the first destination path written for that
// inode, synchronizing concurrent discoveries of the same inode during a
// single traversal.
package hardlink

import (
	"sync"

	"github.com/rclone/arsync/internal/direntry"
)

// Decision is the outcome of Observe.
type Decision int

const (
	// FirstWriter means the caller must perform the full copy itself,
	// then call Resolve on the returned Latch.
	FirstWriter Decision = iota
	// LinkTo means the caller must Wait on Latch, then link from Path to
	// its own destination.
	LinkTo
)

// Latch resolves exactly once, when the first writer for an inode has
// either committed its destination or failed.
type Latch struct {
	done chan struct{}
	err  error
}

func newLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Resolve marks the latch complete. err is nil on success; a non-nil err
// means the first writer failed and waiters should fall back to an
// independent copy rather than producing a missing link.
func (l *Latch) Resolve(err error) {
	l.err = err
	close(l.done)
}

// Wait blocks until the latch resolves and returns the first writer's
// outcome.
func (l *Latch) Wait() error {
	<-l.done
	return l.err
}

type record struct {
	path  string
	latch *Latch
}

// Tracker is the shared, concurrency-safe inode table. A zero Tracker is
// ready to use. It is an explicit collaborator threaded through a
// traversal, never a global singleton.
type Tracker struct {
	mu      sync.Mutex
	records map[direntry.InodeKey]*record
}

// New returns a ready-to-use Tracker.
func New() *Tracker {
	return &Tracker{records: make(map[direntry.InodeKey]*record)}
}

// Observe is the tracker's sole contract: the first call for a given key
// returns FirstWriter along with a Latch the caller must Resolve once its
// destination's data and metadata are fully committed. Every subsequent
// call for the same key returns LinkTo with the first destination path
// and the same Latch to await.
func (t *Tracker) Observe(key direntry.InodeKey, proposedDestination string) (Decision, string, *Latch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.records == nil {
		t.records = make(map[direntry.InodeKey]*record)
	}
	if rec, ok := t.records[key]; ok {
		return LinkTo, rec.path, rec.latch
	}
	rec := &record{path: proposedDestination, latch: newLatch()}
	t.records[key] = rec
	return FirstWriter, proposedDestination, rec.latch
}

// Forget removes key's record, allowing a fresh FirstWriter decision on a
// later Observe for the same key. Used when the first writer fails and
// the tracker's policy is to let the failed inode be retried
// independently rather than stay permanently unresolved.
func (t *Tracker) Forget(key direntry.InodeKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, key)
}

// Len reports the number of distinct multi-linked inodes observed so far.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
