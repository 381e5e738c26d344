// Package pconn defines the minimal datagram-socket interface the
// handshake engine and the sender/receiver cores depend on. Any
// *net.UDPConn (or net.PacketConn) satisfies it; tests substitute an
// in-memory fake to drive adversarial loss/duplication/reorder
// schedules deterministically.
package pconn

import (
	"net"
	"time"
)

// Conn is the subset of net.PacketConn the protocol cores use.
type Conn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

var _ Conn = (*net.UDPConn)(nil)
