// Package api
// Author: momentics <momentics@gmail.com>
//
// Status codes returned by handle operations and the lookup table that
// translates host errors into them.

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// Common errors used across the library.
var (
	ErrHandleClosed     = errors.New("handle is closed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotSupported     = errors.New("operation not supported")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Status codes. Values follow libuv so callers can compare against the
// numbers the legacy API exposes. Zero is success.
const (
	StatusOK = 0

	EPERM         = -1
	ENOENT        = -2
	EINTR         = -4
	EBADF         = -9
	EAGAIN        = -11
	ENOMEM        = -12
	EACCES        = -13
	EBUSY         = -16
	EINVAL        = -22
	EMFILE        = -24
	EPIPE         = -32
	ENAMETOOLONG  = -36
	ENOSYS        = -38
	EPROTO        = -71
	ENOTSOCK      = -88
	EDESTADDRREQ  = -89
	EMSGSIZE      = -90
	ENOTSUP       = -95
	EAFNOSUPPORT  = -97
	EADDRINUSE    = -98
	EADDRNOTAVAIL = -99
	ENETDOWN      = -100
	ENETUNREACH   = -101
	ECONNABORTED  = -103
	ECONNRESET    = -104
	ENOBUFS       = -105
	EISCONN       = -106
	ENOTCONN      = -107
	ETIMEDOUT     = -110
	ECONNREFUSED  = -111
	EHOSTUNREACH  = -113
	EALREADY      = -114
	ECANCELED     = -125

	EOF     = -4095
	UNKNOWN = -4094
)

var codeNames = map[int]string{
	EPERM:         "EPERM",
	ENOENT:        "ENOENT",
	EINTR:         "EINTR",
	EBADF:         "EBADF",
	EAGAIN:        "EAGAIN",
	ENOMEM:        "ENOMEM",
	EACCES:        "EACCES",
	EBUSY:         "EBUSY",
	EINVAL:        "EINVAL",
	EMFILE:        "EMFILE",
	EPIPE:         "EPIPE",
	ENAMETOOLONG:  "ENAMETOOLONG",
	ENOSYS:        "ENOSYS",
	EPROTO:        "EPROTO",
	ENOTSOCK:      "ENOTSOCK",
	EDESTADDRREQ:  "EDESTADDRREQ",
	EMSGSIZE:      "EMSGSIZE",
	ENOTSUP:       "ENOTSUP",
	EAFNOSUPPORT:  "EAFNOSUPPORT",
	EADDRINUSE:    "EADDRINUSE",
	EADDRNOTAVAIL: "EADDRNOTAVAIL",
	ENETDOWN:      "ENETDOWN",
	ENETUNREACH:   "ENETUNREACH",
	ECONNABORTED:  "ECONNABORTED",
	ECONNRESET:    "ECONNRESET",
	ENOBUFS:       "ENOBUFS",
	EISCONN:       "EISCONN",
	ENOTCONN:      "ENOTCONN",
	ETIMEDOUT:     "ETIMEDOUT",
	ECONNREFUSED:  "ECONNREFUSED",
	EHOSTUNREACH:  "EHOSTUNREACH",
	EALREADY:      "EALREADY",
	ECANCELED:     "ECANCELED",
	EOF:           "EOF",
	UNKNOWN:       "UNKNOWN",
}

var codesByName = func() map[string]int {
	m := make(map[string]int, len(codeNames))
	for code, name := range codeNames {
		m[name] = code
	}
	return m
}()

// ErrName returns the symbolic name of a status code, "UNKNOWN" for codes
// outside the table.
func ErrName(code int) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return "UNKNOWN"
}

// CodeFor returns the status code registered under name, UNKNOWN when the
// name is not in the table.
func CodeFor(name string) int {
	if code, ok := codesByName[name]; ok {
		return code
	}
	return UNKNOWN
}

// CodeOf translates a host error into a status code. Nil maps to StatusOK
// and anything the table does not know maps to UNKNOWN.
func CodeOf(err error) int {
	if err == nil {
		return StatusOK
	}
	switch {
	case errors.Is(err, io.EOF):
		return EOF
	case errors.Is(err, net.ErrClosed), errors.Is(err, os.ErrClosed), errors.Is(err, ErrHandleClosed):
		return EBADF
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ETIMEDOUT
	case errors.Is(err, context.Canceled):
		return ECANCELED
	case errors.Is(err, ErrNotSupported):
		return ENOTSUP
	case errors.Is(err, ErrInvalidArgument):
		return EINVAL
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if code, ok := errnoCodes[errno]; ok {
			return code
		}
		return UNKNOWN
	}
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return EINVAL
	}
	switch {
	case errors.Is(err, os.ErrPermission):
		return EACCES
	case errors.Is(err, os.ErrNotExist):
		return ENOENT
	}
	return UNKNOWN
}

// IsPermission reports whether err is a permission or capability denial.
// Those are fatal for bind, listen and connect.
func IsPermission(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, os.ErrPermission) {
		return true
	}
	code := CodeOf(err)
	return code == EACCES || code == EPERM
}

// PermissionError wraps a host permission failure so callers can tell it
// apart with errors.Is(err, ErrPermissionDenied).
func PermissionError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPermissionDenied, err)
}
