// File: api/request.go
// Author: momentics <momentics@gmail.com>
//
// Request objects carry completion callbacks and per-call results for
// asynchronous handle operations.

package api

// WriteReq tracks one write. Bytes and Async are filled in before the
// write call returns; OnComplete runs on the loop once the data is out.
type WriteReq struct {
	Bytes      int
	Async      bool
	OnComplete func(status int)
}

// Complete invokes OnComplete if set.
func (r *WriteReq) Complete(status int) {
	if r != nil && r.OnComplete != nil {
		r.OnComplete(status)
	}
}

// ShutdownReq tracks a shutdown.
type ShutdownReq struct {
	OnComplete func(status int)
}

// Complete invokes OnComplete if set.
func (r *ShutdownReq) Complete(status int) {
	if r != nil && r.OnComplete != nil {
		r.OnComplete(status)
	}
}

// ConnectReq tracks an outbound connect. Address and Port (or Address as
// a path for pipes) are recorded by the handle.
type ConnectReq struct {
	Address    string
	Port       int
	OnComplete func(status int, h Handle, req *ConnectReq, readable, writable bool)
}

// SendReq tracks one datagram send. OnComplete is only invoked when the
// caller asked for a callback.
type SendReq struct {
	Address    string
	Port       int
	OnComplete func(status int, sent int)
}
