package hardlink

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclone/arsync/internal/direntry"
)

func TestObserveFirstWriterThenLinkTo(t *testing.T) {
	tr := New()
	key := direntry.InodeKey{Device: 1, Inode: 42}

	decision, path, latch := tr.Observe(key, "/dst/a")
	assert.Equal(t, FirstWriter, decision)
	assert.Equal(t, "/dst/a", path)

	decision2, path2, latch2 := tr.Observe(key, "/dst/b")
	assert.Equal(t, LinkTo, decision2)
	assert.Equal(t, "/dst/a", path2)
	assert.Same(t, latch, latch2)

	latch.Resolve(nil)
	assert.NoError(t, latch2.Wait())
}

func TestObserveConcurrentSingleFirstWriter(t *testing.T) {
	tr := New()
	key := direntry.InodeKey{Device: 1, Inode: 7}

	const n = 50
	decisions := make([]Decision, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			d, _, latch := tr.Observe(key, "/dst/x")
			decisions[i] = d
			if d == LinkTo {
				_ = latch.Wait()
			}
		}()
	}
	// Ensure the FirstWriter resolves eventually so waiters don't hang.
	go func() {
		for {
			tr.mu.Lock()
			rec, ok := tr.records[key]
			tr.mu.Unlock()
			if ok {
				rec.latch.Resolve(nil)
				return
			}
		}
	}()
	wg.Wait()

	firstWriters := 0
	for _, d := range decisions {
		if d == FirstWriter {
			firstWriters++
		}
	}
	assert.Equal(t, 1, firstWriters)
}

func TestLatchPropagatesFailure(t *testing.T) {
	tr := New()
	key := direntry.InodeKey{Device: 2, Inode: 1}
	_, _, latch := tr.Observe(key, "/dst/a")
	boom := errors.New("boom")
	latch.Resolve(boom)

	_, _, latch2 := tr.Observe(key, "/dst/b")
	require.ErrorIs(t, latch2.Wait(), boom)
}

func TestForgetAllowsFreshFirstWriter(t *testing.T) {
	tr := New()
	key := direntry.InodeKey{Device: 3, Inode: 9}
	_, _, latch := tr.Observe(key, "/dst/a")
	latch.Resolve(errors.New("fail"))
	tr.Forget(key)

	decision, path, _ := tr.Observe(key, "/dst/c")
	assert.Equal(t, FirstWriter, decision)
	assert.Equal(t, "/dst/c", path)
}
