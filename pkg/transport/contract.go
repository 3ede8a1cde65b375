// Package transport defines the capability set a pluggable application
// server must satisfy to be driven by the cluster master/worker runtime.
//
// The core balancer treats a Transport as opaque: it reads Port and
// IsPermanentConnection to make a routing decision, and hands accepted
// sockets to the worker's Server, which re-injects them as if they had been
// natively accepted by an in-process net.Listener.
package transport

import (
	"context"
	"net"
	"sync/atomic"
)

// Server is the in-process application server a Transport wraps. It must
// behave identically whether a connection arrives from its own accept loop
// (standalone use) or is injected by the cluster worker runtime.
type Server interface {
	// Listen prepares the server to accept on port. In cluster mode the
	// worker-side Listen is neutralized by the cluster runtime (the master
	// owns the real bind); Listen still runs in a standalone process.
	Listen(port int) error

	// Close tears the server down. Implementations that need to announce a
	// voluntary shutdown to a supervising master do so by wrapping Close,
	// not by overriding this method's base behavior.
	Close() error

	// OnConnection is the "connection" event sink: it is invoked with a
	// freshly accepted, unread socket, exactly as an in-process Accept
	// would deliver one. Implementations must increment their connection
	// counter before handling the socket.
	OnConnection(conn net.Conn)

	// Connections reports the number of sockets handed to OnConnection
	// since the server started.
	Connections() int64
}

// Transport is the pluggable unit of application-level protocol handling.
type Transport interface {
	// Port is the TCP port this transport's server listens on.
	Port() int

	// Server returns the in-process server the transport drives.
	Server() Server

	// IsPermanentConnection declares the transport's connection style:
	// false selects round-robin balancing (short-lived/stateless
	// connections), true selects sticky-by-remote-address balancing
	// (long-lived/session-bearing connections).
	IsPermanentConnection() bool

	// Start binds (via Server.Listen) and begins serving. Only ever called
	// from a worker process; the master never speaks the application
	// protocol.
	Start(ctx context.Context) error
}

// ClusterHooks is an optional interface a Server implementation may
// satisfy to cooperate with the cluster worker runtime. When present, the
// worker calls EnterClusterMode before Start: Listen must become a no-op
// (the master owns the real bind) and onVoluntaryClose must run before the
// server's own Close teardown, so the worker can announce the close
// upstream.
type ClusterHooks interface {
	EnterClusterMode(onVoluntaryClose func())
}

// ConnCounter is an embeddable helper giving a Server implementation the
// int64 connection counter the contract requires, without every transport
// re-implementing atomic bookkeeping by hand.
type ConnCounter struct {
	n int64
}

// Inc increments the counter. Call it from OnConnection before dispatching
// the connection to application logic.
func (c *ConnCounter) Inc() {
	atomic.AddInt64(&c.n, 1)
}

// Connections reports the current counter value.
func (c *ConnCounter) Connections() int64 {
	return atomic.LoadInt64(&c.n)
}
