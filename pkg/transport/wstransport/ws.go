// Package wstransport is a sticky transport plug-in: long-lived,
// session-bearing WebSocket connections.
package wstransport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clusterd-project/clusterd/pkg/transport"
)

// Handler processes one upgraded WebSocket connection. Implementations read
// and write until the client disconnects; Handler must not retain conn
// after returning.
type Handler func(conn *websocket.Conn)

// Transport upgrades every connection to WebSocket and hands it to a
// Handler. It is a permanent-connection transport, so the balancer routes
// it sticky-by-remote-address.
type Transport struct {
	port     int
	server   *Server
	handler  Handler
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New builds a WebSocket transport listening logically on port. If handler
// is nil, a minimal echo handler is used.
func New(port int, handler Handler) *Transport {
	if handler == nil {
		handler = echoHandler
	}
	t := &Transport{
		port:    port,
		server:  NewServer(port),
		handler: handler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", t.serveUpgrade)
	t.httpSrv = &http.Server{Handler: mux}
	return t
}

func echoHandler(conn *websocket.Conn) {
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}

func (t *Transport) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	t.handler(conn)
}

func (t *Transport) Port() int                  { return t.port }
func (t *Transport) Server() transport.Server   { return t.server }
func (t *Transport) IsPermanentConnection() bool { return true }

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

// Server is the transport.Server side of the WebSocket transport.
type Server struct {
	transport.ConnCounter

	port        int
	listener    *transport.BridgeListener
	clusterMode bool
	onVolClose  func()
}

func NewServer(port int) *Server {
	return &Server{
		port:     port,
		listener: transport.NewBridgeListener(transport.NewPortAddr(port)),
	}
}

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
