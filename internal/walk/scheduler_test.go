package walk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclone/arsync/internal/direntry"
	"github.com/rclone/arsync/internal/hardlink"
	"github.com/rclone/arsync/internal/ioring"
	"github.com/rclone/arsync/internal/pipeline"
	"github.com/rclone/arsync/internal/syncerr"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	facade, err := ioring.New(32, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = facade.Close() })

	p := &pipeline.Pipeline{
		Facade: facade,
		Links:  hardlink.New(),
		Opts:   pipeline.Options{Archive: true},
	}
	return New(p, direntry.Capabilities{}, Limits{MaxInFlightOps: 8, MaxOpenFDs: 8})
}

func TestWalkCopiesTreeStructure(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("A"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("B"), 0644))

	s := newTestScheduler(t)
	err := s.Walk(context.Background(), src, dst)
	require.NoError(t, err)
	assert.True(t, s.Errors.Empty(), s.Errors.Errors())

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(got))

	got, err = os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(got))
}

func TestWalkRecordsLookupErrorForMissingRoot(t *testing.T) {
	s := newTestScheduler(t)
	err := s.Walk(context.Background(), "/nonexistent/arsync-walk-test", "/tmp/arsync-walk-dest")
	require.Error(t, err)
	require.False(t, s.Errors.Empty())
	var le *syncerr.LookupError
	assert.ErrorAs(t, s.Errors.Errors()[0], &le)
}
