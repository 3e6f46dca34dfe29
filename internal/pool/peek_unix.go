//go:build darwin || linux
// +build darwin linux

package pool

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// peekLiveness reports whether conn still looks usable: a
// non-blocking, zero-consuming read on the raw fd. Any readable byte
// while idle means either the peer sent unsolicited data (protocol
// violation on an idle connection) or, more commonly, the peer has
// closed its half of the connection (recv returns 0). Either way the
// connection is not safe to reuse.
func peekLiveness(c net.Conn) bool {
	sc, ok := rawSyscallConn(c)
	if !ok {
		return true // can't inspect; trust it and let the exchange fail loudly if stale
	}

	alive := true
	err := sc.Read(func(fd uintptr) bool {
		buf := make([]byte, 1)
		n, _, rerr := unix.Recvfrom(int(fd), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK:
			alive = true
		case rerr != nil:
			alive = false
		case n == 0:
			alive = false // orderly close from peer
		default:
			alive = false // unsolicited data on an idle connection
		}
		return true
	})
	if err != nil {
		return true
	}
	return alive
}

func rawSyscallConn(c net.Conn) (syscall.RawConn, bool) {
	raw := c
	if t, ok := raw.(interface{ NetConn() net.Conn }); ok {
		raw = t.NetConn()
	}
	sc, ok := raw.(syscall.Conn)
	if !ok {
		return nil, false
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, false
	}
	return rc, true
}
