// Package grpctransport is a sticky transport plug-in demonstrating the
// contract against a multiplexed, long-lived protocol: a gRPC server
// exposing the standard health-checking service. It uses grpc-go's
// pre-generated health packages rather than hand-authored protobuf stubs.
package grpctransport

import (
	"context"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/clusterd-project/clusterd/pkg/transport"
)

// Transport serves grpc_health_v1.Health over injected connections. It is a
// permanent-connection transport (HTTP/2, multiplexed, long-lived), so the
// balancer routes it sticky-by-remote-address.
type Transport struct {
	port       int
	server     *Server
	grpcServer *grpc.Server
	health     *health.Server
}

// New builds a gRPC transport listening logically on port.
func New(port int) *Transport {
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	return &Transport{
		port:       port,
		server:     NewServer(port),
		grpcServer: grpcSrv,
		health:     healthSrv,
	}
}

func (t *Transport) Port() int                  { return t.port }
func (t *Transport) Server() transport.Server   { return t.server }
func (t *Transport) IsPermanentConnection() bool { return true }

func (t *Transport) Start(ctx context.Context) error {
	if err := t.server.Listen(t.port); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- t.grpcServer.Serve(t.server.listener) }()

	select {
	case <-ctx.Done():
		done := make(chan struct{})
		go func() {
			t.grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-time.After(5 * time.Second):
			t.grpcServer.Stop()
			return nil
		}
	case err := <-errCh:
		if err == grpc.ErrServerStopped {
			return nil
		}
		return err
	}
}

// Server is the transport.Server side of the gRPC transport.
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
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
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
