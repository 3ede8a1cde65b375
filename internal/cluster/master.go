package cluster

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
)

// Master owns the real listening socket and runs the balancer. It never
// speaks the application protocol; it only forwards accepted, unread
// sockets to workers.
type Master struct {
	cfg      Config
	logger   *slog.Logger
	sup      *Supervisor
	balancer *Balancer
	seed     uint32
	workers  []*workerHandle
}

// NewMaster builds a Master. self and masterDebugPort are forwarded to the
// Supervisor.
func NewMaster(cfg Config, logger *slog.Logger, self string, masterDebugPort int) (*Master, error) {
	seed, err := randomSeed()
	if err != nil {
		return nil, fmt.Errorf("master: generate routing seed: %w", err)
	}
	return &Master{
		cfg:      cfg,
		logger:   logger,
		sup:      NewSupervisor(cfg, logger, self, masterDebugPort),
		balancer: NewBalancer(seed),
		seed:     seed,
	}, nil
}

// Run binds the transport's port in pause-on-connect mode (Go's Accept
// already never issues a read), spawns the configured worker pool, and
// balances connections until ctx is done.
func (m *Master) Run(ctx context.Context) error {
	addr := &net.TCPAddr{Port: m.cfg.Transport.Port()}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("master: bind listener: %w", err)
	}
	defer ln.Close()

	m.logger.Info("master listening", "port", m.cfg.Transport.Port(), "seed", m.seed)

	// Sequential and blocking-send-safe: the supervisor sizes its event
	// channel to the configured pool before this loop runs, so Spawn never
	// blocks waiting for the select loop below to start draining it.
	for i := 0; i < m.cfg.Workers; i++ {
		if err := m.sup.Spawn(); err != nil {
			return fmt.Errorf("master: spawn initial worker pool: %w", err)
		}
	}

	acceptCh := make(chan *net.TCPConn)
	acceptErrCh := make(chan error, 1)
	go func() {
		for {
			conn, err := ln.AcceptTCP()
			if err != nil {
				acceptErrCh <- err
				return
			}
			acceptCh <- conn
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-acceptErrCh:
			return fmt.Errorf("master: accept: %w", err)
		case conn := <-acceptCh:
			m.route(conn)
		case ev := <-m.sup.Events():
			m.handleSupervisorEvent(ev)
		}
	}
}

func (m *Master) handleSupervisorEvent(ev supervisorEvent) {
	switch ev.kind {
	case eventSpawned:
		m.workers = append(m.workers, ev.handle)
	case eventRemoved:
		ev.handle.connected = false
		m.workers = removeHandle(m.workers, ev.handle)
	}
}

// route chooses a worker, hands off the accepted socket's file descriptor,
// and logs+drops on any failure. No byte is ever read from conn.
func (m *Master) route(conn *net.TCPConn) {
	defer conn.Close() // master retains no handle either way

	chosen, rotated, err := m.balancer.Route(m.workers, conn, m.cfg.Transport.IsPermanentConnection())
	if err != nil {
		m.logger.Error("no live workers available, dropping connection", "remote_addr", conn.RemoteAddr())
		return
	}
	m.workers = rotated

	if !chosen.connected {
		m.logger.Error("chosen worker is not connected, dropping connection", "worker_id", chosen.id)
		return
	}

	f, err := conn.File()
	if err != nil {
		m.logger.Error("failed to obtain socket fd for handoff", "worker_id", chosen.id, "error", err)
		return
	}

	if err := sendBalancing(chosen.conn, f); err != nil {
		m.logger.Error("failed to hand off connection to worker", "worker_id", chosen.id, "error", err)
		return
	}
}

func removeHandle(workers []*workerHandle, target *workerHandle) []*workerHandle {
	out := make([]*workerHandle, 0, len(workers))
	for _, w := range workers {
		if w != target {
			out = append(out, w)
		}
	}
	return out
}

func randomSeed() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
