package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rclone/arsync/internal/direntry"
	"github.com/rclone/arsync/internal/hardlink"
	"github.com/rclone/arsync/internal/ioring"
)

func newTestPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	facade, err := ioring.New(32, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = facade.Close() })
	return &Pipeline{Facade: facade, Links: hardlink.New(), Opts: opts}
}

func TestProcessRegularFileCopiesBytes(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello world"), 0644))

	destPath := filepath.Join(dir, "dst")
	e, err := direntry.Stat(0, srcPath, false, direntry.Capabilities{})
	require.NoError(t, err)

	p := newTestPipeline(t, Options{Archive: true})
	require.NoError(t, p.Process(e, destPath))

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestProcessDirectoryCreatesDir(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "srcdir")
	require.NoError(t, os.Mkdir(srcDir, 0755))
	destDir := filepath.Join(dir, "dstdir")

	e, err := direntry.Stat(0, srcDir, false, direntry.Capabilities{})
	require.NoError(t, err)

	p := newTestPipeline(t, Options{Archive: true})
	require.NoError(t, p.Process(e, destDir))

	info, err := os.Stat(destDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestProcessSymlinkRecreatesTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
	srcLink := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, srcLink))
	destLink := filepath.Join(dir, "dstlink")

	e, err := direntry.Stat(0, srcLink, false, direntry.Capabilities{})
	require.NoError(t, err)

	p := newTestPipeline(t, Options{Archive: true})
	require.NoError(t, p.Process(e, destLink))

	got, err := os.Readlink(destLink)
	require.NoError(t, err)
	require.Equal(t, target, got)
}
