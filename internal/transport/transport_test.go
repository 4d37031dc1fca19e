package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclone/arsync/internal/syncerr"
)

func TestPipePairRoundTrip(t *testing.T) {
	a, b, err := NewPipePair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	go func() {
		_ = a.WriteAll([]byte("hello"))
	}()

	got, err := b.ReadExact(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestReadExactPrematureEOFIsProtocolError(t *testing.T) {
	a, b, err := NewPipePair()
	require.NoError(t, err)
	defer b.Close()

	go func() {
		_ = a.WriteAll([]byte("ab"))
		_ = a.Close()
	}()

	_, err = b.ReadExact(10)
	require.Error(t, err)
	var pe *syncerr.ProtocolError
	assert.ErrorAs(t, err, &pe)
}
