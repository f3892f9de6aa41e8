// File: tcp/tcp.go
// Package tcp implements the TCP handle: outbound connections, bound
// listening servers and in-place TLS upgrade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
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
	// TypeSocket is a client or accepted connection.
	TypeSocket Type = iota
	// TypeServer is a listening handle.
	TypeServer
)

// Bind6 flags.
const (
	FlagIPv6Only = 1
)

// TCP is a TCP handle.
type TCP struct {
	*handle.Connection

	// OnConnection receives each accepted handle, or a negative status
	// and nil when an accept attempt failed.
	OnConnection func(status int, client *TCP)

	opts handle.Options

	mu          sync.Mutex
	bound       *boundSocket
	listener    net.Listener
	acceptor    *accept.Acceptor
	backlog     int
	raw         *net.TCPConn
	cancelDial  context.CancelFunc
	local       api.AddressInfo
	remote      api.AddressInfo
	noDelay     *bool
	keepAlive   *keepAliveSetting
	connections atomic.Int64
}

type keepAliveSetting struct {
	enable bool
	delay  time.Duration
}

// New creates an unbound TCP handle.
func New(typ Type, opts ...handle.Option) *TCP {
	return newTCP(typ, handle.BuildOptions(opts))
}

func newTCP(typ Type, o handle.Options) *TCP {
	p := api.ProviderTCPWrap
	if typ == TypeServer {
		p = api.ProviderTCPServerWrap
	}
	t := &TCP{opts: o}
	t.Connection = handle.NewConnection(t, p, o, t.release)
	return t
}

// Bind records the local IPv4 address. On Linux the socket is created
// and bound immediately. A non-nil error means the bind was denied by
// the host and must not be retried.
func (t *TCP) Bind(address string, port int) (int, error) {
	return t.bind(address, port, false)
}

// Bind6 is Bind for IPv6. flags may carry FlagIPv6Only.
func (t *TCP) Bind6(address string, port int, flags int) (int, error) {
	return t.bind(address, port, flags&FlagIPv6Only != 0)
}

func (t *TCP) bind(address string, port int, ipv6only bool) (int, error) {
	if t.IsClosed() {
		return api.EBADF, nil
	}
	ip := net.ParseIP(address)
	if ip == nil || port < 0 || port > 65535 {
		return api.EINVAL, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bound != nil || t.listener != nil {
		return api.EINVAL, nil
	}
	bs, err := bindSocket(&net.TCPAddr{IP: ip, Port: port}, ipv6only)
	if err != nil {
		return failure("bind", err)
	}
	t.bound = bs
	return api.StatusOK, nil
}

// failure maps err to a status, escalating permission denials.
func failure(op string, err error) (int, error) {
	if api.IsPermission(err) {
		return api.EACCES, api.PermissionError(op, err)
	}
	return api.CodeOf(err), nil
}

// Listen starts accepting. backlog+1 is rounded up to a power of two.
// The actual bound address, including an OS-assigned port, is what
// GetSockName reports afterwards.
func (t *TCP) Listen(backlog int) (int, error) {
	if t.IsClosed() {
		return api.EBADF, nil
	}
	t.mu.Lock()
	if t.listener != nil {
		t.mu.Unlock()
		return api.StatusOK, nil
	}
	if t.bound == nil {
		bs, err := bindSocket(&net.TCPAddr{IP: net.IPv4zero}, false)
		if err != nil {
			t.mu.Unlock()
			return failure("bind", err)
		}
		t.bound = bs
	}
	t.backlog = accept.EffectiveBacklog(backlog)
	ln, err := t.bound.listen(t.backlog)
	t.bound = nil
	if err != nil {
		t.mu.Unlock()
		return failure("listen", err)
	}
	t.listener = ln
	t.local = api.AddressFromNet(ln.Addr())
	t.acceptor = accept.New(accept.Config{
		Source:      ln,
		Backlog:     t.backlog,
		Provider:    t.ProviderType(),
		Loop:        t.Loop(),
		Clock:       t.Clock(),
		Logger:      *t.Logger(),
		Connections: t.Connections,
		OnAccept:    t.onAccept,
		OnError:     t.onAcceptError,
	})
	acc := t.acceptor
	t.mu.Unlock()
	t.SetRefer(handle.NewKeepAlive(t.Loop()))

	control.Probes.RegisterProbe(t.probeName(), t.probe)
	t.Logger().Debug().Str("address", t.local.Address).Int("port", t.local.Port).
		Int("backlog", t.backlog).Msg("listening")
	acc.Start()
	return api.StatusOK, nil
}

func (t *TCP) onAccept(c net.Conn) {
	client := newTCP(TypeSocket, t.opts)
	client.attach(c)
	t.connections.Add(1)
	client.OnClose(func() { t.connections.Add(-1) })
	if t.OnConnection == nil {
		client.Close(nil)
		return
	}
	t.OnConnection(api.StatusOK, client)
}

func (t *TCP) onAcceptError(status int) {
	if t.OnConnection != nil {
		t.OnConnection(status, nil)
	}
}

// Connections returns the number of accepted handles still open.
func (t *TCP) Connections() int { return int(t.connections.Load()) }

// Backlog returns the effective backlog set by Listen.
func (t *TCP) Backlog() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.backlog
}

// AcceptBackoffDelay returns the current accept backoff; ok is false in
// the steady state.
func (t *TCP) AcceptBackoffDelay() (time.Duration, bool) {
	t.mu.Lock()
	acc := t.acceptor
	t.mu.Unlock()
	if acc == nil {
		return 0, false
	}
	return acc.BackoffDelay()
}

// Connect dials an IPv4 address. Completion is reported through
// req.OnComplete. A permission denial goes to the destroy hook.
func (t *TCP) Connect(req *api.ConnectReq, address string, port int) (int, error) {
	return t.connect(req, address, port)
}

// Connect6 dials an IPv6 address.
func (t *TCP) Connect6(req *api.ConnectReq, address string, port int) (int, error) {
	return t.connect(req, address, port)
}

func (t *TCP) connect(req *api.ConnectReq, address string, port int) (int, error) {
	if t.IsClosed() {
		return api.EBADF, nil
	}
	ip := net.ParseIP(address)
	if ip == nil || port <= 0 || port > 65535 {
		return api.EINVAL, nil
	}
	req.Address, req.Port = address, port

	t.mu.Lock()
	var d net.Dialer
	if t.bound != nil {
		d.LocalAddr = t.bound.localAddr()
		_ = t.bound.close()
		t.bound = nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancelDial = cancel
	t.mu.Unlock()

	target := net.JoinHostPort(ip.String(), strconv.Itoa(port))
	go func() {
		defer cancel()
		c, err := d.DialContext(ctx, "tcp", target)
		if t.IsClosed() {
			if c != nil {
				_ = c.Close()
			}
			t.AfterConnect(req, api.ECANCELED)
			return
		}
		if err != nil {
			if api.IsPermission(err) {
				t.Destroy(api.PermissionError("connect", err))
				return
			}
			status := api.CodeOf(err)
			if status == api.UNKNOWN {
				status = api.ECONNREFUSED
			}
			t.Logger().Debug().Err(err).Str("target", target).Msg("connect failed")
			t.AfterConnect(req, status)
			return
		}
		t.finishConnect(req, c)
	}()
	return api.StatusOK, nil
}

// finishConnect attaches a dialed conn. A Close that raced the dial
// completes the request with ECANCELED.
func (t *TCP) finishConnect(req *api.ConnectReq, c net.Conn) {
	t.attach(c)
	if t.IsClosed() {
		t.AfterConnect(req, api.ECANCELED)
		return
	}
	t.AfterConnect(req, api.StatusOK)
}

// Open adopts an already connected socket descriptor.
func (t *TCP) Open(fd uintptr) int {
	if t.IsClosed() {
		return api.EBADF
	}
	f := os.NewFile(fd, "tcp")
	if f == nil {
		return api.EBADF
	}
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		return api.CodeOf(err)
	}
	t.attach(c)
	return api.StatusOK
}

func (t *TCP) attach(c net.Conn) {
	t.mu.Lock()
	t.local = api.AddressFromNet(c.LocalAddr())
	t.remote = api.AddressFromNet(c.RemoteAddr())
	if tc, ok := c.(*net.TCPConn); ok {
		t.raw = tc
		if t.noDelay != nil {
			_ = tc.SetNoDelay(*t.noDelay)
		}
		if ka := t.keepAlive; ka != nil {
			applyKeepAlive(tc, ka)
		}
	}
	t.mu.Unlock()
	t.Attach(handle.WrapNetConn(c, t.Loop()))
}

// SetNoDelay toggles Nagle's algorithm. Applied on connect if called
// earlier.
func (t *TCP) SetNoDelay(enable bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.noDelay = &enable
	if t.raw != nil {
		return api.CodeOf(t.raw.SetNoDelay(enable))
	}
	return api.StatusOK
}

// SetKeepAlive toggles TCP keep-alive probes; delay is the idle time
// before the first probe, in seconds.
func (t *TCP) SetKeepAlive(enable bool, delay int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keepAlive = &keepAliveSetting{enable: enable, delay: time.Duration(delay) * time.Second}
	if t.raw != nil {
		return applyKeepAlive(t.raw, t.keepAlive)
	}
	return api.StatusOK
}

func applyKeepAlive(c *net.TCPConn, ka *keepAliveSetting) int {
	if err := c.SetKeepAlive(ka.enable); err != nil {
		return api.CodeOf(err)
	}
	if ka.enable && ka.delay > 0 {
		return api.CodeOf(c.SetKeepAlivePeriod(ka.delay))
	}
	return api.StatusOK
}

// SetSimultaneousAccepts exists for API parity; the host has no
// equivalent knob.
func (t *TCP) SetSimultaneousAccepts(bool) int { return api.StatusOK }

// GetSockName returns the local address.
func (t *TCP) GetSockName() (api.AddressInfo, int) {
	if t.IsClosed() {
		return api.AddressInfo{}, api.EBADF
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.local.IsZero() {
		return t.local, api.StatusOK
	}
	if t.bound != nil {
		if a := t.bound.localAddr(); a != nil {
			return api.AddressFromNet(a), api.StatusOK
		}
	}
	return api.AddressInfo{}, api.EBADF
}

// GetPeerName returns the remote address of a connected handle.
func (t *TCP) GetPeerName() (api.AddressInfo, int) {
	if t.IsClosed() {
		return api.AddressInfo{}, api.EBADF
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remote.IsZero() {
		return api.AddressInfo{}, api.ENOTCONN
	}
	return t.remote, api.StatusOK
}

// Reset closes the connection with an RST instead of a FIN.
func (t *TCP) Reset(cb func()) int {
	t.mu.Lock()
	raw := t.raw
	t.mu.Unlock()
	if raw != nil {
		_ = raw.SetLinger(0)
	}
	t.Close(cb)
	return api.StatusOK
}

// StartTLS upgrades the connection in place. Reads and writes already
// queued continue on the TLS session. Callers stop reading first if
// plaintext bytes in flight must not reach onread.
func (t *TCP) StartTLS(cfg *tls.Config, server bool) int {
	if t.IsClosed() {
		return api.EBADF
	}
	t.mu.Lock()
	raw := t.raw
	t.mu.Unlock()
	if raw == nil {
		return api.ENOTCONN
	}
	var c net.Conn
	if server {
		c = tls.Server(raw, cfg)
	} else {
		c = tls.Client(raw, cfg)
	}
	if err := t.SwapConn(handle.WrapNetConn(c, t.Loop())); err != nil {
		return api.CodeOf(err)
	}
	t.Logger().Debug().Bool("server", server).Msg("upgraded to tls")
	return api.StatusOK
}

func (t *TCP) probeName() string {
	return fmt.Sprintf("tcp.%d", t.AsyncID())
}

func (t *TCP) probe() any {
	delay, _ := t.AcceptBackoffDelay()
	t.mu.Lock()
	defer t.mu.Unlock()
	return map[string]any{
		"address":     t.local.Address,
		"port":        t.local.Port,
		"backlog":     t.backlog,
		"connections": t.Connections(),
		"backoff":     delay.String(),
	}
}

// release stops the accept loop and frees the socket or listener. The
// stream layer closes the connection afterwards.
func (t *TCP) release() error {
	t.mu.Lock()
	acc, ln, bs, cancel := t.acceptor, t.listener, t.bound, t.cancelDial
	t.acceptor, t.listener, t.bound, t.cancelDial = nil, nil, nil, nil
	t.local, t.remote = api.AddressInfo{}, api.AddressInfo{}
	t.raw = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if acc != nil {
		acc.Stop()
		control.Probes.UnregisterProbe(t.probeName())
	}
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	if bs != nil {
		if cerr := bs.close(); err == nil {
			err = cerr
		}
	}
	return err
}
