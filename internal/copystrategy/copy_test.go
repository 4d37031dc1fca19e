package copystrategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rclone/arsync/internal/ioring"
)

func TestCopyRegularFileBufferedPath(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src")
	dstPath := filepath.Join(dir, "dst")

	content := make([]byte, bufferSize*2+137)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(srcPath, content, 0644))

	src, err := os.Open(srcPath)
	require.NoError(t, err)
	defer src.Close()

	dst, err := os.Create(dstPath)
	require.NoError(t, err)
	defer dst.Close()

	facade, err := ioring.New(32, 4)
	require.NoError(t, err)
	defer facade.Close()

	result, err := Copy(facade, src, dst, int64(len(content)), false, false, srcPath)
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), result.BytesWritten)

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	require.Equal(t, content, got)
}
