//go:build !windows

// Package sockopt applies low-level socket tuning to the UDP sockets
// used by the reliable-datagram endpoints. None of this affects
// protocol correctness — it only asks the kernel for a receive buffer
// generous enough that a fast sender filling an 8191-entry window does
// not force avoidable datagram drops below the protocol layer.
package sockopt

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/pkg/errors"
)

// SetReceiveBuffer raises SO_RCVBUF on the socket underlying conn to at
// least size bytes. Failure is non-fatal to the caller (the kernel
// default is a safe fallback) but is returned so callers can log it.
func SetReceiveBuffer(conn *net.UDPConn, size int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return errors.Wrap(err, "obtain raw socket")
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size)
	})
	if err != nil {
		return errors.Wrap(err, "control raw socket")
	}
	return errors.Wrap(sockErr, "setsockopt SO_RCVBUF")
}
