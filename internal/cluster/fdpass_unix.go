//go:build unix

package cluster

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// newIPCSocketpair creates a connected pair of SOCK_SEQPACKET Unix-domain
// sockets suitable for framed control messages with SCM_RIGHTS-attached
// file descriptors. One end is kept by the master, the other handed to the
// child as exec.Cmd.ExtraFiles[0] (fd 3 in the child) at fork.
func newIPCSocketpair() (parent *os.File, child *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("fdpass: socketpair: %w", err)
	}
	parent = os.NewFile(uintptr(fds[0]), "ipc-parent")
	child = os.NewFile(uintptr(fds[1]), "ipc-child")
	return parent, child, nil
}

// sendBalancing sends the "balancing" control message over conn with
// sock's file descriptor attached via SCM_RIGHTS, then closes the master's
// copy of sock: ownership of the connection has transferred to the worker.
func sendBalancing(conn *net.UnixConn, sock *os.File) error {
	defer sock.Close()
	body, err := ipcMessage{Type: ipcTypeBalancing}.marshal()
	if err != nil {
		return fmt.Errorf("fdpass: marshal balancing message: %w", err)
	}
	oob := unix.UnixRights(int(sock.Fd()))
	_, _, err = conn.WriteMsgUnix(body, oob, nil)
	if err != nil {
		return fmt.Errorf("fdpass: send balancing message: %w", err)
	}
	return nil
}

// sendClose sends the {"type":"close"} control message with no attachment.
func sendClose(conn *net.UnixConn) error {
	body, err := ipcMessage{Type: ipcTypeClose}.marshal()
	if err != nil {
		return fmt.Errorf("fdpass: marshal close message: %w", err)
	}
	if _, _, err := conn.WriteMsgUnix(body, nil, nil); err != nil {
		return fmt.Errorf("fdpass: send close message: %w", err)
	}
	return nil
}

// recvMessage reads one control message off conn, returning any attached
// socket reconstructed as a net.Conn, ready for use exactly as if it had
// been natively accepted in this process.
func recvMessage(conn *net.UnixConn) (ipcMessage, net.Conn, error) {
	buf := make([]byte, 4096)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return ipcMessage{}, nil, err
	}

	var msg ipcMessage
	if err := msg.unmarshal(buf[:n]); err != nil {
		return ipcMessage{}, nil, fmt.Errorf("fdpass: unmarshal control message: %w", err)
	}

	if oobn == 0 {
		return msg, nil, nil
	}

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return msg, nil, fmt.Errorf("fdpass: parse control message: %w", err)
	}
	if len(scms) == 0 {
		return msg, nil, nil
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return msg, nil, fmt.Errorf("fdpass: parse unix rights: %w", err)
	}
	if len(fds) == 0 {
		return msg, nil, nil
	}

	f := os.NewFile(uintptr(fds[0]), "handed-off-socket")
	defer f.Close()
	netConn, err := net.FileConn(f)
	if err != nil {
		return msg, nil, fmt.Errorf("fdpass: reconstruct connection: %w", err)
	}
	return msg, netConn, nil
}
