package protocol

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclone/arsync/internal/transport"
)

func runBothSides(t *testing.T, a, b *Handshake) (*Session, *Session) {
	t.Helper()
	var sa, sb *Session
	var ea, eb error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); sa, ea = a.Run() }()
	go func() { defer wg.Done(); sb, eb = b.Run() }()
	wg.Wait()
	require.NoError(t, ea)
	require.NoError(t, eb)
	return sa, sb
}

func TestHandshakeAgreesOnMinVersionAndANDsCapabilities(t *testing.T) {
	streamA, streamB, err := transport.NewPipePair()
	require.NoError(t, err)
	defer streamA.Close()
	defer streamB.Close()

	a := NewHandshake(streamA, 35, CapSymlink|CapXattr, RoleSender, true)
	b := NewHandshake(streamB, PreferredVersion, CapSymlink|CapACL, RoleReceiver, false)

	sa, sb := runBothSides(t, a, b)

	assert.EqualValues(t, PreferredVersion, sa.Version)
	assert.EqualValues(t, PreferredVersion, sb.Version)
	assert.True(t, sa.Capabilities.Symlink)
	assert.False(t, sa.Capabilities.Xattr)
	assert.False(t, sa.Capabilities.ACL)
	assert.Equal(t, sa.Seed, sb.Seed)
}

func TestHandshakeFailsOnUnsupportedVersion(t *testing.T) {
	streamA, streamB, err := transport.NewPipePair()
	require.NoError(t, err)
	defer streamA.Close()
	defer streamB.Close()

	a := NewHandshake(streamA, 10, CapSymlink, RoleSender, true)
	b := NewHandshake(streamB, PreferredVersion, CapSymlink, RoleReceiver, false)

	var ea, eb error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, ea = a.Run() }()
	go func() { defer wg.Done(); _, eb = b.Run() }()
	wg.Wait()

	require.Error(t, ea)
	require.Error(t, eb)
	assert.Equal(t, Failed, a.State())
	assert.Equal(t, Failed, b.State())
}
