// File: api/errno_windows.go
//go:build windows

// Author: momentics <momentics@gmail.com>
//
// Host errno values and the status codes they map to.

package api

import (
	"syscall"

	"golang.org/x/sys/windows"
)

var errnoCodes = map[syscall.Errno]int{
	windows.ERROR_ACCESS_DENIED:      EACCES,
	windows.ERROR_FILE_NOT_FOUND:     ENOENT,
	windows.ERROR_PATH_NOT_FOUND:     ENOENT,
	windows.ERROR_INVALID_HANDLE:     EBADF,
	windows.ERROR_BROKEN_PIPE:        EOF,
	windows.ERROR_NO_DATA:            EPIPE,
	windows.ERROR_PIPE_BUSY:          EBUSY,
	windows.ERROR_PIPE_NOT_CONNECTED: ENOTCONN,
	windows.ERROR_OPERATION_ABORTED:  ECANCELED,
	windows.ERROR_NOT_SUPPORTED:      ENOTSUP,
	windows.ERROR_INVALID_PARAMETER:  EINVAL,
	windows.ERROR_SEM_TIMEOUT:        ETIMEDOUT,
	windows.WSAEINTR:                 EINTR,
	windows.WSAEBADF:                 EBADF,
	windows.WSAEACCES:                EACCES,
	windows.WSAEINVAL:                EINVAL,
	windows.WSAEMFILE:                EMFILE,
	windows.WSAEWOULDBLOCK:           EAGAIN,
	windows.WSAEALREADY:              EALREADY,
	windows.WSAENOTSOCK:              ENOTSOCK,
	windows.WSAEDESTADDRREQ:          EDESTADDRREQ,
	windows.WSAEMSGSIZE:              EMSGSIZE,
	windows.WSAEOPNOTSUPP:            ENOTSUP,
	windows.WSAEAFNOSUPPORT:          EAFNOSUPPORT,
	windows.WSAEADDRINUSE:            EADDRINUSE,
	windows.WSAEADDRNOTAVAIL:         EADDRNOTAVAIL,
	windows.WSAENETDOWN:              ENETDOWN,
	windows.WSAENETUNREACH:           ENETUNREACH,
	windows.WSAECONNABORTED:          ECONNABORTED,
	windows.WSAECONNRESET:            ECONNRESET,
	windows.WSAENOBUFS:               ENOBUFS,
	windows.WSAEISCONN:               EISCONN,
	windows.WSAENOTCONN:              ENOTCONN,
	windows.WSAETIMEDOUT:             ETIMEDOUT,
	windows.WSAECONNREFUSED:          ECONNREFUSED,
	windows.WSAEHOSTUNREACH:          EHOSTUNREACH,
}
