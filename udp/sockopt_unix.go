// File: udp/sockopt_unix.go
//go:build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package udp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func setSockoptInt(rc syscall.RawConn, opt, value int) error {
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, value)
	}); err != nil {
		return err
	}
	return serr
}

func getSockoptInt(rc syscall.RawConn, opt int) (int, error) {
	var (
		v    int
		serr error
	)
	if err := rc.Control(func(fd uintptr) {
		v, serr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, opt)
	}); err != nil {
		return 0, err
	}
	return v, serr
}

const (
	optBroadcast = unix.SO_BROADCAST
	optReuseAddr = unix.SO_REUSEADDR
	optRecvBuf   = unix.SO_RCVBUF
	optSendBuf   = unix.SO_SNDBUF
)
