// File: api/errno_unix.go
//go:build unix

// Author: momentics <momentics@gmail.com>
//
// Host errno values and the status codes they map to.

package api

import (
	"syscall"

	"golang.org/x/sys/unix"
)

var errnoCodes = map[syscall.Errno]int{
	unix.EPERM:         EPERM,
	unix.ENOENT:        ENOENT,
	unix.EINTR:         EINTR,
	unix.EBADF:         EBADF,
	unix.EAGAIN:        EAGAIN,
	unix.ENOMEM:        ENOMEM,
	unix.EACCES:        EACCES,
	unix.EBUSY:         EBUSY,
	unix.EINVAL:        EINVAL,
	unix.EMFILE:        EMFILE,
	unix.EPIPE:         EPIPE,
	unix.ENAMETOOLONG:  ENAMETOOLONG,
	unix.ENOSYS:        ENOSYS,
	unix.EPROTO:        EPROTO,
	unix.ENOTSOCK:      ENOTSOCK,
	unix.EDESTADDRREQ:  EDESTADDRREQ,
	unix.EMSGSIZE:      EMSGSIZE,
	unix.ENOTSUP:       ENOTSUP,
	unix.EAFNOSUPPORT:  EAFNOSUPPORT,
	unix.EADDRINUSE:    EADDRINUSE,
	unix.EADDRNOTAVAIL: EADDRNOTAVAIL,
	unix.ENETDOWN:      ENETDOWN,
	unix.ENETUNREACH:   ENETUNREACH,
	unix.ECONNABORTED:  ECONNABORTED,
	unix.ECONNRESET:    ECONNRESET,
	unix.ENOBUFS:       ENOBUFS,
	unix.EISCONN:       EISCONN,
	unix.ENOTCONN:      ENOTCONN,
	unix.ETIMEDOUT:     ETIMEDOUT,
	unix.ECONNREFUSED:  ECONNREFUSED,
	unix.EHOSTUNREACH:  EHOSTUNREACH,
	unix.EALREADY:      EALREADY,
	unix.ECANCELED:     ECANCELED,
}
