// Package httptransport is a round-robin transport plug-in: short-lived
// stateless HTTP request/response connections.
package httptransport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clusterd-project/clusterd/pkg/transport"
)

// Transport serves an HTTP router. It is not a permanent-connection
// transport, so the balancer routes it round-robin.
type Transport struct {
	port    int
	server  *Server
	httpSrv *http.Server
}

// New builds an HTTP transport listening logically on port, routed by r. If
// r is nil, a minimal chi router replying with the process pid is used
// (handy for exercising round-robin end to end: successive connections land
// on successive workers, so requests on new connections report rotating
// pids; requests reusing one keep-alive connection stay on one worker).
func New(port int, r chi.Router) *Transport {
	if r == nil {
		r = defaultRouter()
	}
	return &Transport{
		port:    port,
		server:  NewServer(port),
		httpSrv: &http.Server{Handler: r},
	}
}

func defaultRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "pid=%d\n", os.Getpid())
	})
	return r
}

func (t *Transport) Port() int                  { return t.port }
func (t *Transport) Server() transport.Server   { return t.server }
func (t *Transport) IsPermanentConnection() bool { return false }

func (t *Transport) Start(ctx context.Context) error {
	if err := t.server.Listen(t.port); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- t.httpSrv.Serve(t.server.listener) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Server is the transport.Server side of the HTTP transport: a bridge
// listener plus the connection counter the contract requires.
type Server struct {
	transport.ConnCounter

	port        int
	listener    *transport.BridgeListener
	clusterMode bool
	onVolClose  func()
}

// NewServer creates a Server bound to port (logically; the real bind
// happens in the master in cluster mode).
func NewServer(port int) *Server {
	return &Server{
		port:     port,
		listener: transport.NewBridgeListener(transport.NewPortAddr(port)),
	}
}

// Listen satisfies transport.Server. In standalone use it binds a real
// net.Listener and forwards its accepts into the bridge; under
// EnterClusterMode it is a no-op, since the master owns the real bind.
func (s *Server) Listen(port int) error {
	if s.clusterMode {
		return nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.OnConnection(conn)
		}
	}()
	return nil
}

// EnterClusterMode implements transport.ClusterHooks.
func (s *Server) EnterClusterMode(onVoluntaryClose func()) {
	s.clusterMode = true
	s.onVolClose = onVoluntaryClose
}

func (s *Server) Close() error {
	if s.onVolClose != nil {
		s.onVolClose()
	}
	return s.listener.Close()
}

func (s *Server) OnConnection(conn net.Conn) {
	s.Inc()
	s.listener.Push(conn)
}
