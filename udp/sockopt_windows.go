// File: udp/sockopt_windows.go
//go:build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package udp

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

func setSockoptInt(rc syscall.RawConn, opt, value int) error {
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, opt, value)
	}); err != nil {
		return err
	}
	return serr
}

func getSockoptInt(rc syscall.RawConn, opt int) (int, error) {
	var (
		v    int32
		serr error
	)
	if err := rc.Control(func(fd uintptr) {
		l := int32(unsafe.Sizeof(v))
		serr = windows.Getsockopt(windows.Handle(fd), windows.SOL_SOCKET, int32(opt), (*byte)(unsafe.Pointer(&v)), &l)
	}); err != nil {
		return 0, err
	}
	return int(v), serr
}

const (
	optBroadcast = windows.SO_BROADCAST
	optReuseAddr = windows.SO_REUSEADDR
	optRecvBuf   = windows.SO_RCVBUF
	optSendBuf   = windows.SO_SNDBUF
)
