// tcp/socket_other.go
//go:build !linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Generic listen path: Bind only records the address and the host
// listener binds and listens in one step.

package tcp

import (
	"context"
	"net"
)

type boundSocket struct {
	addr     *net.TCPAddr
	ipv6only bool
}

func bindSocket(addr *net.TCPAddr, ipv6only bool) (*boundSocket, error) {
	return &boundSocket{addr: addr, ipv6only: ipv6only}, nil
}

// listen ignores backlog; the runtime picks the OS listen queue length.
func (b *boundSocket) listen(int) (net.Listener, error) {
	network := "tcp"
	if b.ipv6only {
		network = "tcp6"
	}
	var lc net.ListenConfig
	return lc.Listen(context.Background(), network, b.addr.String())
}

func (b *boundSocket) localAddr() net.Addr { return b.addr }

func (b *boundSocket) close() error { return nil }
