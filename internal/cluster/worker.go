package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/clusterd-project/clusterd/pkg/transport"
)

// Worker is the runtime a re-exec'd child process drives: it reads
// handoff messages from the master over its inherited IPC file descriptor
// and injects each received socket into the transport's server exactly as
// a native accept would.
type Worker struct {
	cfg    Config
	logger *slog.Logger
	conn   *net.UnixConn
}

// ipcChildFD is the well-known descriptor number the supervisor passes the
// child's end of the socketpair on (exec.Cmd.ExtraFiles[0]; fd 0,1,2 are
// stdin/stdout/stderr).
const ipcChildFD = 3

// NewWorker builds a Worker from its inherited IPC file descriptor.
func NewWorker(cfg Config, logger *slog.Logger) (*Worker, error) {
	f := os.NewFile(uintptr(ipcChildFD), "ipc-child")
	if f == nil {
		return nil, fmt.Errorf("worker: missing inherited ipc file descriptor")
	}
	conn, ok := fileToUnixConn(f)
	if !ok {
		return nil, fmt.Errorf("worker: inherited fd %d is not a unix socket", ipcChildFD)
	}
	return &Worker{cfg: cfg, logger: logger, conn: conn}, nil
}

// Run wires the transport's server into cluster mode (neutralizing its
// Listen and arranging for voluntary Close to announce itself upstream),
// starts the transport, and feeds it handed-off sockets until the IPC
// channel closes or ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	srv := w.cfg.Transport.Server()

	if hooks, ok := srv.(transport.ClusterHooks); ok {
		hooks.EnterClusterMode(w.announceClose)
	} else {
		w.logger.Warn("transport server does not implement ClusterHooks; its Listen will attempt a real bind and collide with the master's")
	}

	ipcDone := make(chan error, 1)
	go func() { ipcDone <- w.receiveLoop(srv) }()

	startErrCh := make(chan error, 1)
	go func() { startErrCh <- w.cfg.Transport.Start(ctx) }()

	w.logger.Info("worker started", "pid", os.Getpid())

	select {
	case err := <-ipcDone:
		w.logger.Info("ipc channel closed, worker exiting", "error", err)
		return nil
	case err := <-startErrCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// receiveLoop handles one IPC message kind that matters here: on a
// "balancing" message with an attached socket, hand it to the server's
// connection sink exactly as a native accept would.
func (w *Worker) receiveLoop(srv transport.Server) error {
	for {
		msg, conn, err := recvMessage(w.conn)
		if err != nil {
			return err
		}
		if msg.Type != ipcTypeBalancing || conn == nil {
			continue
		}
		srv.OnConnection(conn)
	}
}

func (w *Worker) announceClose() {
	if err := sendClose(w.conn); err != nil {
		w.logger.Error("failed to announce voluntary close to master", "error", err)
	}
}
