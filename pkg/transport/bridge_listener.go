package transport

import (
	"errors"
	"net"
	"strconv"
	"sync"
)

// BridgeListener is a net.Listener whose Accept is fed by Push rather than
// by the kernel. Concrete transports (HTTP, WebSocket, gRPC) hand this to
// their stdlib serve loop (http.Serve, grpc.Server.Serve, ...) so the same
// serving code path runs whether a connection arrived from a real OS accept
// (standalone mode) or was injected by the cluster worker runtime.
type BridgeListener struct {
	addr net.Addr

	mu     sync.Mutex
	closed bool
	conns  chan net.Conn
}

// NewBridgeListener creates a listener reporting addr from Addr().
func NewBridgeListener(addr net.Addr) *BridgeListener {
	return &BridgeListener{
		addr:  addr,
		conns: make(chan net.Conn, 64),
	}
}

// Push delivers conn to the next Accept call. It is safe to call from any
// goroutine, including the worker runtime's IPC receive loop.
func (l *BridgeListener) Push(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		_ = conn.Close()
		return
	}
	l.conns <- conn
}

// Accept implements net.Listener.
func (l *BridgeListener) Accept() (net.Conn, error) {
	conn, ok := <-l.conns
	if !ok {
		return nil, errors.New("transport: bridge listener closed")
	}
	return conn, nil
}

// Close implements net.Listener. Pending and future pushes are rejected;
// already-queued connections are closed unread.
func (l *BridgeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.conns)
	for conn := range l.conns {
		_ = conn.Close()
	}
	return nil
}

// Addr implements net.Listener.
func (l *BridgeListener) Addr() net.Addr {
	return l.addr
}

type tcpAddr struct {
	port int
}

func (a tcpAddr) Network() string { return "tcp" }
func (a tcpAddr) String() string  { return "0.0.0.0:" + strconv.Itoa(a.port) }

// NewPortAddr is a small net.Addr for a known port, used by transports that
// only know their configured port and not a bound *net.TCPAddr (the master
// owns the real bind in cluster mode).
func NewPortAddr(port int) net.Addr {
	return tcpAddr{port: port}
}
