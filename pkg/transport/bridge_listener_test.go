package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	net.Conn
	closed bool
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestBridgeListenerPushThenAccept(t *testing.T) {
	l := NewBridgeListener(NewPortAddr(8080))
	fc := &fakeConn{}
	l.Push(fc)

	got, err := l.Accept()
	require.NoError(t, err)
	assert.Same(t, fc, got)
}

func TestBridgeListenerAcceptBlocksUntilPush(t *testing.T) {
	l := NewBridgeListener(NewPortAddr(8080))
	fc := &fakeConn{}

	done := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		require.NoError(t, err)
		done <- conn
	}()

	select {
	case <-done:
		t.Fatal("Accept returned before Push")
	case <-time.After(50 * time.Millisecond):
	}

	l.Push(fc)
	select {
	case got := <-done:
		assert.Same(t, fc, got)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept never returned after Push")
	}
}

func TestBridgeListenerCloseRejectsFuturePushesAndDrainsPending(t *testing.T) {
	l := NewBridgeListener(NewPortAddr(8080))
	pending := &fakeConn{}
	l.Push(pending)

	require.NoError(t, l.Close())
	assert.True(t, pending.closed, "connection queued before Close should be closed by Close")

	rejected := &fakeConn{}
	l.Push(rejected)
	assert.True(t, rejected.closed, "connection pushed after Close should be closed immediately")

	_, err := l.Accept()
	assert.Error(t, err)
}

func TestBridgeListenerCloseIsIdempotent(t *testing.T) {
	l := NewBridgeListener(NewPortAddr(8080))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

func TestNewPortAddrString(t *testing.T) {
	a := NewPortAddr(9001)
	assert.Equal(t, "tcp", a.Network())
	assert.Equal(t, "0.0.0.0:9001", a.String())
}
