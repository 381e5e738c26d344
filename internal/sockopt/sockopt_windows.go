//go:build windows

package sockopt

import "net"

// SetReceiveBuffer is a no-op on platforms where we don't carry a
// syscall-level tuning path; net.UDPConn's default buffer applies.
func SetReceiveBuffer(conn *net.UDPConn, size int) error {
	return nil
}
