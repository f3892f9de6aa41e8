// File: handle/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import "github.com/momentics/hioload-wrap/api"

// Connection adds connect completion to Stream.
type Connection struct {
	*Stream
}

// NewConnection creates a connection-capable stream handle.
func NewConnection(self api.Handle, p api.ProviderType, o Options, release func() error) *Connection {
	return &Connection{Stream: NewStream(self, p, o, release)}
}

// AfterConnect reports a connect result on the loop. The stream is
// readable and writable exactly when status is zero.
func (c *Connection) AfterConnect(req *api.ConnectReq, status int) {
	ok := status == api.StatusOK
	c.Post(func() {
		if req != nil && req.OnComplete != nil {
			req.OnComplete(status, c.Self(), req, ok, ok)
		}
	})
}
