package syncerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLookupErrorNilIsNil(t *testing.T) {
	assert.NoError(t, NewLookupError("/tmp/x", nil))
}

func TestMetadataErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewMetadataError("/tmp/x", AttrXattr, cause)
	require.Error(t, err)
	var me *MetadataError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, AttrXattr, me.Attr)
	assert.True(t, errors.Is(err, cause) || errors.Unwrap(err) != nil)
}

func TestIsDirectoryPrune(t *testing.T) {
	err := NewCreateError("/tmp/d", errors.New("no space"))
	assert.True(t, IsDirectoryPrune(err))
	assert.False(t, IsDirectoryPrune(NewLinkError("a", "b", errors.New("x"))))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(NewProtocolError("bad version", nil)))
	assert.False(t, IsFatal(NewTransferError("f", 0, errors.New("short write"))))
}

func TestAccumulator(t *testing.T) {
	var acc Accumulator
	assert.True(t, acc.Empty())
	acc.Add(nil)
	assert.True(t, acc.Empty())
	acc.Add(NewLinkError("a", "b", errors.New("eexist")))
	acc.Add(NewTransferError("c", 10, errors.New("eio")))
	assert.False(t, acc.Empty())
	assert.Equal(t, 2, acc.Len())
	assert.Len(t, acc.Errors(), 2)
}
