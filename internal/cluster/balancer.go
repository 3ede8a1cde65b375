package cluster

import (
	"fmt"
	"net"

	"github.com/clusterd-project/clusterd/pkg/clusterhash"
)

// errNoWorkers is returned when the routing list is empty at routing time;
// the connection is simply dropped — the supervisor is responsible for
// keeping at least one worker alive after startup.
var errNoWorkers = fmt.Errorf("cluster: no live workers to route to")

// Balancer implements the round-robin and sticky-by-address routing
// policies. It owns no state itself beyond the seed: the routing list it
// operates on is owned and mutated exclusively by the master's event-loop
// goroutine (Master.Run), so Balancer requires no internal locking.
type Balancer struct {
	seed uint32
}

// NewBalancer creates a Balancer with a fixed per-master-instance seed.
func NewBalancer(seed uint32) *Balancer {
	return &Balancer{seed: seed}
}

// Route selects a worker for conn given the transport's connection style
// and returns it together with the routing list the caller should keep. For
// round-robin, that list is a rotated copy: the chosen worker (the former
// head) is moved to the tail; the workers slice passed in is not modified.
// For sticky, workers itself is returned unmodified.
//
// The caller (master.go) is responsible for acting on send failure: log and
// drop the connection; the routing list itself is never mutated on failure
// here (a dead worker is pruned by the supervisor on exit, not by the
// balancer).
func (b *Balancer) Route(workers []*workerHandle, conn net.Conn, permanent bool) (*workerHandle, []*workerHandle, error) {
	if len(workers) == 0 {
		return nil, workers, errNoWorkers
	}

	addr := remoteAddrBytes(conn)

	if permanent {
		idx := int(clusterhash.Hash(b.seed, addr) % uint32(len(workers)))
		return workers[idx], workers, nil
	}

	// Round-robin: remove the head, select it, re-append at the tail.
	head := workers[0]
	rotated := append(append([]*workerHandle{}, workers[1:]...), head)
	return head, rotated, nil
}

// remoteAddrBytes returns conn's remote address as raw bytes, substituting
// the literal "127.0.0.1" if empty.
func remoteAddrBytes(conn net.Conn) []byte {
	addr := conn.RemoteAddr()
	var s string
	if addr != nil {
		s = addr.String()
	}
	if s == "" {
		s = "127.0.0.1"
	}
	return []byte(s)
}
