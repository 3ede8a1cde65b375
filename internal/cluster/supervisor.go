package cluster

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// workerHandle is the master-side record of a spawned worker.
type workerHandle struct {
	id        int
	pid       int
	instance  uuid.UUID
	cmd       *exec.Cmd
	conn      *net.UnixConn
	connected bool
}

// supervisorEventKind distinguishes the two ways the routing list changes.
type supervisorEventKind int

const (
	eventSpawned supervisorEventKind = iota
	eventRemoved
)

type supervisorEvent struct {
	kind   supervisorEventKind
	handle *workerHandle
}

// debugFlagRe matches the debugger/inspector flags a worker may have
// inherited on the command line, with or without an "=port" suffix. Every
// matching argument is dropped by deriveArgs; a single
// "--inspect-brk=<newPort>" is appended in its place only when the master
// has a debug port.
var debugFlagRe = regexp.MustCompile(`^--(inspect|inspect-brk|inspect-port|debug-port)(=\d+)?$`)

// Supervisor forks workers, assigns unique ids, offsets debug ports, and
// runs the respawn state machine.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger
	self   string // path to this program's own image, for re-exec

	mu         sync.Mutex
	nextID     int64
	debugPort  int
	nextOffset int64

	events chan supervisorEvent
}

// NewSupervisor creates a Supervisor for cfg. self is the executable path
// used to re-exec workers (typically os.Executable()); masterDebugPort is
// the master's own inspector/debug port, if any (0 if none), used as the
// base for each child's debug-port offset.
//
// events is sized to cfg.Workers plus headroom for steady-state churn: the
// initial pool is spawned sequentially before anything drains the channel,
// so it must never block on a full buffer regardless of pool size.
func NewSupervisor(cfg Config, logger *slog.Logger, self string, masterDebugPort int) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		logger:    logger,
		self:      self,
		debugPort: masterDebugPort,
		events:    make(chan supervisorEvent, cfg.Workers+32),
	}
}

// Events delivers spawned/removed notifications for the master's routing
// list. It is never closed.
func (s *Supervisor) Events() <-chan supervisorEvent {
	return s.events
}

// allocateID returns the next strictly monotonic worker id.
func (s *Supervisor) allocateID() int {
	return int(atomic.AddInt64(&s.nextID, 1)) - 1
}

// Spawn forks one worker and blocks until its IPC channel has been
// established (i.e. the process is running and holding its end of the
// socketpair), then emits an eventSpawned notification.
func (s *Supervisor) Spawn() error {
	id := s.allocateID()

	parentConn, childFile, err := newIPCSocketpair()
	if err != nil {
		return fmt.Errorf("supervisor: create ipc socketpair: %w", err)
	}

	env := s.deriveEnv(id)
	args := s.deriveArgs()

	cmd := exec.Command(s.self, args...)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{childFile}

	if err := cmd.Start(); err != nil {
		_ = parentConn.Close()
		_ = childFile.Close()
		return fmt.Errorf("supervisor: start worker: %w", err)
	}
	_ = childFile.Close() // the child holds its own copy after fork+exec

	unixConn, ok := fileToUnixConn(parentConn)
	if !ok {
		_ = cmd.Process.Kill()
		return fmt.Errorf("supervisor: ipc socket is not a unix connection")
	}

	handle := &workerHandle{
		id:        id,
		pid:       cmd.Process.Pid,
		instance:  uuid.New(),
		cmd:       cmd,
		conn:      unixConn,
		connected: true,
	}

	s.logger.Info("spawned worker", "worker_id", id, "pid", handle.pid, "instance", handle.instance.String())
	s.events <- supervisorEvent{kind: eventSpawned, handle: handle}

	go s.watch(handle)

	return nil
}

// watch observes one worker's lifetime: its process exit and its IPC
// control messages. It runs for the lifetime of the worker and terminates
// the goroutine when the worker is gone.
func (s *Supervisor) watch(h *workerHandle) {
	closeCh := make(chan struct{}, 1)

	go func() {
		for {
			msg, _, err := recvMessage(h.conn)
			if err != nil {
				return
			}
			if msg.Type == ipcTypeClose {
				select {
				case closeCh <- struct{}{}:
				default:
				}
				return
			}
		}
	}()

	exitCh := make(chan error, 1)
	go func() { exitCh <- h.cmd.Wait() }()

	select {
	case <-closeCh:
		s.logger.Info("worker announced voluntary close", "worker_id", h.id, "pid", h.pid)
		s.events <- supervisorEvent{kind: eventRemoved, handle: h}
		_ = h.conn.Close()
		if s.cfg.Respawn {
			if err := s.Spawn(); err != nil {
				s.logger.Error("failed to respawn worker after close", "worker_id", h.id, "error", err)
			}
		}
	case err := <-exitCh:
		if err != nil {
			s.logger.Error("worker exited", "worker_id", h.id, "pid", h.pid, "error", err)
		} else {
			s.logger.Info("worker exited", "worker_id", h.id, "pid", h.pid)
		}
		s.events <- supervisorEvent{kind: eventRemoved, handle: h}
		_ = h.conn.Close()
		if s.cfg.Respawn {
			if err := s.Spawn(); err != nil {
				s.logger.Error("failed to respawn worker after exit", "worker_id", h.id, "error", err)
			}
		}
	}
}

// deriveEnv overlays cfg.Env onto the master's own environment, assigning
// a fresh NODE_UNIQUE_ID and marking the child as a worker via
// CLUSTER_MASTER_PID.
func (s *Supervisor) deriveEnv(id int) []string {
	env := os.Environ()
	env = append(env, fmt.Sprintf("%s=%d", masterPIDEnv, os.Getpid()))
	env = append(env, fmt.Sprintf("%s=%d", uniqueIDEnv, id))
	for k, v := range s.cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// deriveArgs copies the master's own startup arguments, rewriting any
// debugger/inspector flag to a fresh, non-colliding port. If the master has
// no debug port (0), debugger flags are dropped without a replacement.
func (s *Supervisor) deriveArgs() []string {
	src := os.Args[1:]
	out := make([]string, 0, len(src)+1)

	hadDebugFlag := false
	for _, a := range src {
		if debugFlagRe.MatchString(a) {
			hadDebugFlag = true
			continue // dropped; a fresh --inspect-brk=<port> may be appended below
		}
		out = append(out, a)
	}

	if hadDebugFlag && s.debugPort != 0 {
		out = append(out, fmt.Sprintf("--inspect-brk=%d", s.nextDebugPort()))
	}

	return out
}

// nextDebugPort computes masterDebugPort + offset, incrementing offset on
// every call and wrapping (decrementing by one) if the result would exceed
// 65535.
func (s *Supervisor) nextDebugPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOffset++
	port := s.debugPort + int(s.nextOffset)
	if port > 65535 {
		port--
	}
	return port
}

func fileToUnixConn(f *os.File) (*net.UnixConn, bool) {
	c, err := net.FileConn(f)
	_ = f.Close() // FileConn dups; the original fd is no longer needed
	if err != nil {
		return nil, false
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		_ = c.Close()
		return nil, false
	}
	return uc, true
}
