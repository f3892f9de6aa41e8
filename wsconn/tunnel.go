// File: wsconn/tunnel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wsconn

import (
	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/handle"
)

// Tunnel is a connected stream handle over a websocket. It behaves like
// a pipe stream: ReadStart, writes, Shutdown and Close all apply.
type Tunnel struct {
	*handle.Connection
	conn *Conn
}

// Open wraps c in a stream handle.
func Open(c *Conn, opts ...handle.Option) *Tunnel {
	t := &Tunnel{conn: c}
	t.Connection = handle.NewConnection(t, api.ProviderPipeWrap, handle.BuildOptions(opts), nil)
	t.Attach(c)
	return t
}

// GetSockName returns the local endpoint of the underlying socket.
func (t *Tunnel) GetSockName() (api.AddressInfo, int) {
	if t.IsClosed() {
		return api.AddressInfo{}, api.EBADF
	}
	return api.AddressFromNet(t.conn.LocalAddr()), api.StatusOK
}

// GetPeerName returns the remote endpoint of the underlying socket.
func (t *Tunnel) GetPeerName() (api.AddressInfo, int) {
	if t.IsClosed() {
		return api.AddressInfo{}, api.EBADF
	}
	return api.AddressFromNet(t.conn.RemoteAddr()), api.StatusOK
}
