//go:build windows

package cluster

import (
	"errors"
	"net"
	"os"
)

// ErrUnsupportedPlatform is returned by every fd-passing primitive on
// platforms where it is not implemented. Windows socket handoff would use
// DuplicateHandle/WSADuplicateSocket; that path is not implemented for this
// module, see DESIGN.md.
var ErrUnsupportedPlatform = errors.New("cluster: fd passing is not implemented on this platform")

func newIPCSocketpair() (parent *os.File, child *os.File, err error) {
	return nil, nil, ErrUnsupportedPlatform
}

func sendBalancing(conn *net.UnixConn, sock *os.File) error {
	return ErrUnsupportedPlatform
}

func sendClose(conn *net.UnixConn) error {
	return ErrUnsupportedPlatform
}

func recvMessage(conn *net.UnixConn) (ipcMessage, net.Conn, error) {
	return ipcMessage{}, nil, ErrUnsupportedPlatform
}
