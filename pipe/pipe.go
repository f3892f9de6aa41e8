// File: pipe/pipe.go
// Package pipe implements the pipe handle over Unix-domain sockets or,
// on Windows, named pipes.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/control"
	"github.com/momentics/hioload-wrap/handle"
	"github.com/momentics/hioload-wrap/internal/accept"
)

// Type selects the role the handle is created for.
type Type int

const (
	TypeSocket Type = iota
	TypeServer
	TypeIPC
)

// Fchmod mode bits.
const (
	Readable = 1
	Writable = 2
)

// DefaultPendingInstances is the named-pipe pool size.
const DefaultPendingInstances = 4

type listener interface {
	accept.Source
	Close() error
	Addr() net.Addr
}

// Pipe is a pipe handle.
type Pipe struct {
	*handle.Connection

	// OnConnection receives each accepted handle, or a negative status
	// and nil when an accept attempt failed.
	OnConnection func(status int, client *Pipe)

	opts handle.Options
	ipc  bool

	mu          sync.Mutex
	path        string
	pending     int
	backlog     int
	listener    listener
	acceptor    *accept.Acceptor
	cancelDial  context.CancelFunc
	local       api.AddressInfo
	remote      api.AddressInfo
	connections atomic.Int64
}

// New creates an unbound pipe handle.
func New(typ Type, opts ...handle.Option) *Pipe {
	return newPipe(typ, handle.BuildOptions(opts))
}

func newPipe(typ Type, o handle.Options) *Pipe {
	p := api.ProviderPipeWrap
	if typ == TypeServer {
		p = api.ProviderPipeServerWrap
	}
	pp := &Pipe{opts: o, ipc: typ == TypeIPC, pending: DefaultPendingInstances}
	pp.Connection = handle.NewConnection(pp, p, o, pp.release)
	return pp
}

// IPC reports whether the handle was created for IPC. Handle passing
// is not supported; the flag only travels with the handle.
func (p *Pipe) IPC() bool { return p.ipc }

// Bind records the path or pipe name Listen will serve.
func (p *Pipe) Bind(name string) int {
	if p.IsClosed() {
		return api.EBADF
	}
	if name == "" {
		return api.EINVAL
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path != "" {
		return api.EINVAL
	}
	p.path = name
	return api.StatusOK
}

// SetPendingInstances sizes the named-pipe instance pool. It has no
// effect on Unix-domain sockets.
func (p *Pipe) SetPendingInstances(n int) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	p.pending = n
	p.mu.Unlock()
}

// Listen starts accepting on the bound path.
func (p *Pipe) Listen(backlog int) (int, error) {
	if p.IsClosed() {
		return api.EBADF, nil
	}
	p.mu.Lock()
	if p.listener != nil {
		p.mu.Unlock()
		return api.StatusOK, nil
	}
	if p.path == "" {
		p.mu.Unlock()
		return api.EINVAL, nil
	}
	ln, err := listenPipe(p.path, p.pending)
	if err != nil {
		p.mu.Unlock()
		if api.IsPermission(err) {
			return api.EACCES, api.PermissionError("listen", err)
		}
		return api.CodeOf(err), nil
	}
	p.listener = ln
	p.backlog = accept.EffectiveBacklog(backlog)
	p.local = api.AddressInfo{Path: p.path}
	p.acceptor = accept.New(accept.Config{
		Source:      ln,
		Backlog:     p.backlog,
		Provider:    p.ProviderType(),
		Loop:        p.Loop(),
		Clock:       p.Clock(),
		Logger:      *p.Logger(),
		Connections: p.Connections,
		OnAccept:    p.onAccept,
		OnError:     p.onAcceptError,
	})
	acc := p.acceptor
	p.mu.Unlock()
	p.SetRefer(handle.NewKeepAlive(p.Loop()))

	control.Probes.RegisterProbe(p.probeName(), p.probe)
	p.Logger().Debug().Str("path", p.local.Path).Int("backlog", p.backlog).Msg("listening")
	acc.Start()
	return api.StatusOK, nil
}

func (p *Pipe) onAccept(c net.Conn) {
	client := newPipe(TypeSocket, p.opts)
	client.ipc = p.ipc
	client.attach(handle.WrapNetConn(c, p.Loop()), c)
	p.connections.Add(1)
	client.OnClose(func() { p.connections.Add(-1) })
	if p.OnConnection == nil {
		client.Close(nil)
		return
	}
	p.OnConnection(api.StatusOK, client)
}

func (p *Pipe) onAcceptError(status int) {
	if p.OnConnection != nil {
		p.OnConnection(status, nil)
	}
}

// Connections returns the number of accepted handles still open.
func (p *Pipe) Connections() int { return int(p.connections.Load()) }

// AcceptBackoffDelay returns the current accept backoff; ok is false in
// the steady state.
func (p *Pipe) AcceptBackoffDelay() (time.Duration, bool) {
	p.mu.Lock()
	acc := p.acceptor
	p.mu.Unlock()
	if acc == nil {
		return 0, false
	}
	return acc.BackoffDelay()
}

// Connect dials name. A permission denial goes to the destroy hook.
func (p *Pipe) Connect(req *api.ConnectReq, name string) (int, error) {
	if p.IsClosed() {
		return api.EBADF, nil
	}
	if name == "" {
		return api.EINVAL, nil
	}
	req.Address = name
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancelDial = cancel
	p.mu.Unlock()

	go func() {
		defer cancel()
		c, err := dialPipe(ctx, name)
		if p.IsClosed() {
			if c != nil {
				_ = c.Close()
			}
			p.AfterConnect(req, api.ECANCELED)
			return
		}
		if err != nil {
			if api.IsPermission(err) {
				p.Destroy(api.PermissionError("connect", err))
				return
			}
			status := api.CodeOf(err)
			if status == api.UNKNOWN {
				status = api.ECONNREFUSED
			}
			p.Logger().Debug().Err(err).Str("path", name).Msg("connect failed")
			p.AfterConnect(req, status)
			return
		}
		p.finishConnect(req, c)
	}()
	return api.StatusOK, nil
}

// finishConnect attaches a dialed conn. A Close that raced the dial
// completes the request with ECANCELED.
func (p *Pipe) finishConnect(req *api.ConnectReq, c net.Conn) {
	p.attach(handle.WrapNetConn(c, p.Loop()), c)
	if p.IsClosed() {
		p.AfterConnect(req, api.ECANCELED)
		return
	}
	p.AfterConnect(req, api.StatusOK)
}

// Open adopts a descriptor: a Unix socket when it is one, otherwise a
// file stream (pipe, tty).
func (p *Pipe) Open(fd uintptr) int {
	if p.IsClosed() {
		return api.EBADF
	}
	conn, nc, err := openFD(fd, p.opts)
	if err != nil {
		return api.CodeOf(err)
	}
	p.attach(conn, nc)
	return api.StatusOK
}

func (p *Pipe) attach(conn api.Conn, nc net.Conn) {
	if nc != nil {
		p.mu.Lock()
		if a := api.AddressFromNet(nc.LocalAddr()); a.Path != "" {
			p.local = a
		}
		p.remote = api.AddressFromNet(nc.RemoteAddr())
		p.mu.Unlock()
	}
	p.Attach(conn)
}

// Fchmod makes the bound path readable and/or writable by everyone.
func (p *Pipe) Fchmod(mode int) int {
	if p.IsClosed() {
		return api.EBADF
	}
	var perm os.FileMode
	switch mode {
	case Readable:
		perm = 0o444
	case Writable:
		perm = 0o222
	case Readable | Writable:
		perm = 0o666
	default:
		return api.EINVAL
	}
	p.mu.Lock()
	path := p.path
	p.mu.Unlock()
	if path == "" {
		return api.EBADF
	}
	if err := chmodPipe(path, perm); err != nil {
		return api.CodeOf(err)
	}
	return api.StatusOK
}

// GetSockName returns the bound path.
func (p *Pipe) GetSockName() (api.AddressInfo, int) {
	if p.IsClosed() {
		return api.AddressInfo{}, api.EBADF
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.local.IsZero() {
		return p.local, api.StatusOK
	}
	return api.AddressInfo{Path: p.path}, api.StatusOK
}

// GetPeerName returns the path of the connected peer.
func (p *Pipe) GetPeerName() (api.AddressInfo, int) {
	if p.IsClosed() {
		return api.AddressInfo{}, api.EBADF
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote.IsZero() {
		return api.AddressInfo{}, api.ENOTCONN
	}
	return p.remote, api.StatusOK
}

func (p *Pipe) probeName() string {
	return fmt.Sprintf("pipe.%d", p.AsyncID())
}

func (p *Pipe) probe() any {
	delay, _ := p.AcceptBackoffDelay()
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{
		"path":        p.path,
		"backlog":     p.backlog,
		"pending":     p.pending,
		"connections": p.Connections(),
		"backoff":     delay.String(),
	}
}

// release stops accepting and closes the listener, which removes the
// socket file.
func (p *Pipe) release() error {
	p.mu.Lock()
	acc, ln, cancel := p.acceptor, p.listener, p.cancelDial
	p.acceptor, p.listener, p.cancelDial = nil, nil, nil
	p.local, p.remote = api.AddressInfo{}, api.AddressInfo{}
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if acc != nil {
		acc.Stop()
		control.Probes.UnregisterProbe(p.probeName())
	}
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
	}
	return nil
}
