package grpctransport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	net.Conn
}

func TestServerOnConnectionIncrementsCounterAndFeedsListener(t *testing.T) {
	s := NewServer(8082)
	assert.Equal(t, int64(0), s.Connections())

	s.OnConnection(&fakeConn{})
	assert.Equal(t, int64(1), s.Connections())

	got, err := s.listener.Accept()
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestServerListenIsNoOpInClusterMode(t *testing.T) {
	s := NewServer(0)
	s.EnterClusterMode(func() {})
	require.NoError(t, s.Listen(0))
}

func TestServerCloseInvokesVoluntaryCloseHook(t *testing.T) {
	s := NewServer(8082)
	called := false
	s.EnterClusterMode(func() { called = true })

	require.NoError(t, s.Close())
	assert.True(t, called)
}

func TestTransportIsPermanentConnectionAndServesHealth(t *testing.T) {
	tr := New(8082)
	assert.True(t, tr.IsPermanentConnection())
	assert.Equal(t, 8082, tr.Port())
	assert.NotNil(t, tr.Server())
	assert.NotNil(t, tr.health)
}
