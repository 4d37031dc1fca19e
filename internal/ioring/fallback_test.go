//go:build linux

package ioring

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFallbackPoolRun(t *testing.T) {
	p := newFallbackPool(2)
	defer p.close()

	assert.NoError(t, p.run(func() error { return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, p.run(func() error { return boom }), boom)
}

func TestFutimensAppliesThroughFD(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "futimens")
	require.NoError(t, err)
	defer f.Close()

	atime := unix.NsecToTimespec(1000000000)
	mtime := unix.NsecToTimespec(2000000000)
	require.NoError(t, futimens(int(f.Fd()), atime, mtime))

	var st unix.Stat_t
	require.NoError(t, unix.Fstat(int(f.Fd()), &st))
	assert.EqualValues(t, 2, st.Mtim.Sec)
}
