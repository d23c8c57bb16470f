//go:build linux || darwin || freebsd

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// tuneListener sets SO_REUSEADDR on newly created listening sockets;
// tuneConn enables TCP keepalive and TCP_NODELAY on accepted and dialed
// connections. Repurposed from the teacher's use of
// golang.org/x/sys/unix for TUN device ioctls (cmd/ironwood-example) to
// socket-option tuning here, the one place this module actually needs
// unix syscall access.
func tuneListener(l net.Listener) {
	tl, ok := l.(*net.TCPListener)
	if !ok {
		return
	}
	sc, err := tl.SyscallConn()
	if err != nil {
		return
	}
	_ = sc.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
}

func tuneConn(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	sc, err := tc.SyscallConn()
	if err != nil {
		return
	}
	_ = sc.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		_ = unix.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
}
