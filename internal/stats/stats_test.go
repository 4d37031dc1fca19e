package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersSnapshot(t *testing.T) {
	var c Counters
	c.AddBytesWritten(100)
	c.AddBytesSparse(50)
	c.IncEntriesVisited()
	c.IncEntriesVisited()
	c.IncEntriesLinked()
	c.IncEntriesFailed()

	snap := c.Snapshot()
	assert.EqualValues(t, 100, snap.BytesWritten)
	assert.EqualValues(t, 50, snap.BytesSparse)
	assert.EqualValues(t, 2, snap.EntriesVisited)
	assert.EqualValues(t, 1, snap.EntriesLinked)
	assert.EqualValues(t, 1, snap.EntriesFailed)
}

func TestCountersConcurrentUse(t *testing.T) {
	var c Counters
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddBytesWritten(1)
			c.IncEntriesVisited()
		}()
	}
	wg.Wait()
	snap := c.Snapshot()
	assert.EqualValues(t, 100, snap.BytesWritten)
	assert.EqualValues(t, 100, snap.EntriesVisited)
}
