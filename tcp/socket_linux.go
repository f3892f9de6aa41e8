// tcp/socket_linux.go
//go:build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Native listen path: the socket is created and bound when Bind is
// called and listen(2) receives the effective backlog.

package tcp

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

type boundSocket struct {
	fd int
}

func bindSocket(addr *net.TCPAddr, ipv6only bool) (*boundSocket, error) {
	var (
		family = unix.AF_INET
		sa     unix.Sockaddr
	)
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa4 := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		family = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa6.Addr[:], addr.IP.To16())
		if addr.Zone != "" {
			if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
				sa6.ZoneId = uint32(ifi.Index)
			}
		}
		sa = sa6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if family == unix.AF_INET6 {
		v6only := 0
		if ipv6only {
			v6only = 1
		}
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v6only)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return &boundSocket{fd: fd}, nil
}

// listen hands the socket to the runtime poller. The bound socket is
// consumed either way.
func (b *boundSocket) listen(backlog int) (net.Listener, error) {
	fd := b.fd
	b.fd = -1
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}
	f := os.NewFile(uintptr(fd), "tcp-listener")
	defer f.Close()
	return net.FileListener(f)
}

func (b *boundSocket) localAddr() net.Addr {
	if b.fd < 0 {
		return nil
	}
	sa, err := unix.Getsockname(b.fd)
	if err != nil {
		return nil
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]).To16(), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	}
	return nil
}

func (b *boundSocket) close() error {
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}
