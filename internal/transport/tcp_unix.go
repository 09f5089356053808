//go:build unix

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

// TuneLowLatency disables Nagle's algorithm and raises the socket
// buffer sizes, reaching past net.TCPConn's portable API via
// SyscallConn to set SO_RCVBUF/SO_SNDBUF directly. Suitable as a TCP.Tune
// value for invocation channels, where many small request/reply frames
// benefit more from low latency than from write coalescing.
func TuneLowLatency(bufBytes int) func(*net.TCPConn) error {
	return func(conn *net.TCPConn) error {
		if err := conn.SetNoDelay(true); err != nil {
			return err
		}
		raw, err := conn.SyscallConn()
		if err != nil {
			return err
		}
		var sockErr error
		err = raw.Control(func(fd uintptr) {
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bufBytes); sockErr != nil {
				return
			}
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bufBytes)
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}
