package direntry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/rclone/arsync/internal/syncerr"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "regular", KindRegular.String())
	assert.Equal(t, "directory", KindDirectory.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestIsMultiLinked(t *testing.T) {
	e := &Entry{Kind: KindRegular, LinkCount: 1}
	assert.False(t, e.IsMultiLinked())
	e.LinkCount = 2
	assert.True(t, e.IsMultiLinked())
	e.Kind = KindDirectory
	assert.False(t, e.IsMultiLinked())
}

func TestStatRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file1")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	e, err := Stat(unix.AT_FDCWD, path, false, Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, KindRegular, e.Kind)
	assert.EqualValues(t, 5, e.Size)
	assert.EqualValues(t, 1, e.LinkCount)
}

func TestStatSymlinkNotFollowed(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	e, err := Stat(unix.AT_FDCWD, link, false, Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, KindSymlink, e.Kind)
	assert.Equal(t, target, e.SymlinkTarget)
}

func TestStatMissingIsLookupError(t *testing.T) {
	_, err := Stat(unix.AT_FDCWD, "/nonexistent/arsync-test-path", false, Capabilities{})
	require.Error(t, err)
	var le *syncerr.LookupError
	assert.ErrorAs(t, err, &le)
}
