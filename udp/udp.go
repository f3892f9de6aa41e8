// File: udp/udp.go
// Package udp implements the datagram handle: bind, connect, queued
// sends and a continuous receive loop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package udp

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/control"
	"github.com/momentics/hioload-wrap/handle"
	"github.com/momentics/hioload-wrap/pool"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Bind flags.
const (
	FlagIPv6Only  = 1
	FlagReuseAddr = 4
)

// MaxDatagramSize bounds payloads and socket buffer sizes.
const MaxDatagramSize = pool.ReceiveBufferSize

type sendOp struct {
	req     *api.SendReq
	payload []byte
	addr    *net.UDPAddr
}

// UDP is a datagram handle.
type UDP struct {
	*handle.Handle

	// OnMessage receives each datagram with its sender, or a negative
	// status with a nil buffer. The buffer is reused; copy to keep it.
	OnMessage func(nread int, u *UDP, buf []byte, rinfo api.AddressInfo)

	ka *handle.KeepAlive

	mu          sync.Mutex
	conn        *net.UDPConn
	v4          *ipv4.PacketConn
	v6          *ipv6.PacketConn
	peer        *net.UDPAddr
	receiving   bool
	recvRunning bool
	sends       *queue.Queue
	sendRunning bool

	sendBytes atomic.Int64
	sendCount atomic.Int64
}

// New creates an unbound UDP handle.
func New(opts ...handle.Option) *UDP {
	o := handle.BuildOptions(opts)
	u := &UDP{sends: queue.New(), ka: handle.NewKeepAlive(o.Loop)}
	u.Handle = handle.NewHandle(u, api.ProviderUDPWrap, o, u.release)
	return u
}

// Bind binds an IPv4 address. flags may carry FlagReuseAddr.
func (u *UDP) Bind(address string, port int, flags int) (int, error) {
	return u.bind("udp4", address, port, flags)
}

// Bind6 binds an IPv6 address. Without FlagIPv6Only the socket is
// dual-stack.
func (u *UDP) Bind6(address string, port int, flags int) (int, error) {
	network := "udp"
	if flags&FlagIPv6Only != 0 {
		network = "udp6"
	}
	return u.bind(network, address, port, flags)
}

func (u *UDP) bind(network, address string, port int, flags int) (int, error) {
	if u.IsClosed() {
		return api.EBADF, nil
	}
	ip := net.ParseIP(address)
	if ip == nil || port < 0 || port > 65535 {
		return api.EINVAL, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		return api.EINVAL, nil
	}
	var lc net.ListenConfig
	if flags&FlagReuseAddr != 0 {
		lc.Control = func(_, _ string, rc syscall.RawConn) error {
			return setSockoptInt(rc, optReuseAddr, 1)
		}
	}
	pc, err := lc.ListenPacket(context.Background(), network, net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	if err != nil {
		if api.IsPermission(err) {
			return api.EACCES, api.PermissionError("bind", err)
		}
		return api.CodeOf(err), nil
	}
	u.conn = pc.(*net.UDPConn)
	if ip.To4() != nil {
		u.v4 = ipv4.NewPacketConn(u.conn)
	} else {
		u.v6 = ipv6.NewPacketConn(u.conn)
	}
	u.SetRefer(u.ka)
	u.Logger().Debug().Str("local", u.conn.LocalAddr().String()).Msg("bound")
	return api.StatusOK, nil
}

func (u *UDP) ensureBound(v6 bool) (int, error) {
	u.mu.Lock()
	bound := u.conn != nil
	u.mu.Unlock()
	if bound {
		return api.StatusOK, nil
	}
	if v6 {
		return u.Bind6("::", 0, 0)
	}
	return u.Bind("0.0.0.0", 0, 0)
}

// Connect sets the default peer. Datagrams from other senders are
// dropped while connected.
func (u *UDP) Connect(address string, port int) (int, error) {
	return u.connect(address, port, false)
}

// Connect6 is Connect for IPv6.
func (u *UDP) Connect6(address string, port int) (int, error) {
	return u.connect(address, port, true)
}

func (u *UDP) connect(address string, port int, v6 bool) (int, error) {
	if u.IsClosed() {
		return api.EBADF, nil
	}
	ip := net.ParseIP(address)
	if ip == nil || port <= 0 || port > 65535 {
		return api.EINVAL, nil
	}
	if st, err := u.ensureBound(v6); st != api.StatusOK {
		return st, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.peer != nil {
		return api.EISCONN, nil
	}
	u.peer = &net.UDPAddr{IP: ip, Port: port}
	return api.StatusOK, nil
}

// Disconnect clears the default peer.
func (u *UDP) Disconnect() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.peer == nil {
		return api.ENOTCONN
	}
	u.peer = nil
	return api.StatusOK
}

// Send queues one datagram built from chunks ([]byte or UTF-8 strings).
// An empty address targets the connected peer. The handle is bound to
// the wildcard address first if needed. req.OnComplete, when set,
// receives the status and byte count.
func (u *UDP) Send(req *api.SendReq, chunks []any, port int, address string) int {
	return u.send(req, chunks, port, address, false)
}

// Send6 is Send for IPv6.
func (u *UDP) Send6(req *api.SendReq, chunks []any, port int, address string) int {
	return u.send(req, chunks, port, address, true)
}

func (u *UDP) send(req *api.SendReq, chunks []any, port int, address string, v6 bool) int {
	if u.IsClosed() {
		return api.EBADF
	}
	var payload []byte
	for _, c := range chunks {
		b, ok := handle.EncodeChunk(c, "utf8")
		if !ok {
			return api.EINVAL
		}
		payload = append(payload, b...)
	}
	if len(payload) > MaxDatagramSize {
		return api.EMSGSIZE
	}
	if st, _ := u.ensureBound(v6); st != api.StatusOK {
		return st
	}

	u.mu.Lock()
	peer := u.peer
	u.mu.Unlock()
	var dst *net.UDPAddr
	switch {
	case address == "" && peer == nil:
		return api.EDESTADDRREQ
	case address == "":
		dst = peer
	case peer != nil:
		return api.EISCONN
	default:
		ip := net.ParseIP(address)
		if ip == nil || port <= 0 || port > 65535 {
			return api.EINVAL
		}
		dst = &net.UDPAddr{IP: ip, Port: port}
	}
	if req != nil {
		req.Address, req.Port = dst.IP.String(), dst.Port
	}

	u.sendBytes.Add(int64(len(payload)))
	u.sendCount.Add(1)
	u.mu.Lock()
	u.sends.Add(sendOp{req: req, payload: payload, addr: dst})
	start := !u.sendRunning
	if start {
		u.sendRunning = true
	}
	u.mu.Unlock()
	if start {
		go u.sendLoop()
	}
	return api.StatusOK
}

func (u *UDP) sendLoop() {
	for {
		u.mu.Lock()
		if u.sends.Length() == 0 {
			u.sendRunning = false
			u.mu.Unlock()
			return
		}
		op := u.sends.Remove().(sendOp)
		conn := u.conn
		u.mu.Unlock()

		status, n := api.ECANCELED, 0
		if conn != nil && !u.IsClosed() {
			var err error
			n, err = conn.WriteToUDP(op.payload, op.addr)
			status = api.CodeOf(err)
			if err == nil {
				control.DatagramSent()
			}
		}
		u.sendBytes.Add(-int64(len(op.payload)))
		u.sendCount.Add(-1)
		if op.req != nil && op.req.OnComplete != nil {
			req := op.req
			u.Post(func() { req.OnComplete(status, n) })
		}
	}
}

// GetSendQueueSize returns the bytes queued but not yet sent.
func (u *UDP) GetSendQueueSize() int { return int(u.sendBytes.Load()) }

// GetSendQueueCount returns the datagrams queued but not yet sent.
func (u *UDP) GetSendQueueCount() int { return int(u.sendCount.Load()) }

// RecvStart begins the receive loop. It is idempotent.
func (u *UDP) RecvStart() int {
	if u.IsClosed() {
		return api.EBADF
	}
	u.mu.Lock()
	if u.conn == nil {
		u.mu.Unlock()
		return api.EBADF
	}
	u.receiving = true
	start := !u.recvRunning
	if start {
		u.recvRunning = true
	}
	u.mu.Unlock()
	if start {
		go u.receiveLoop()
	}
	return api.StatusOK
}

// RecvStop stops the receive loop. A blocked receive is interrupted.
func (u *UDP) RecvStop() int {
	u.mu.Lock()
	u.receiving = false
	conn, running := u.conn, u.recvRunning
	u.mu.Unlock()
	if conn != nil && running {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	}
	return api.StatusOK
}

func (u *UDP) receiveLoop() {
	buf := pool.GetReceiveBuffer()
	defer pool.PutReceiveBuffer(buf)
	for {
		u.mu.Lock()
		if !u.receiving || u.conn == nil {
			u.recvRunning = false
			u.mu.Unlock()
			return
		}
		conn := u.conn
		u.mu.Unlock()

		n, from, err := conn.ReadFromUDP(buf)
		if u.IsClosed() || errors.Is(err, net.ErrClosed) {
			u.stopReceiveLoop()
			return
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			_ = conn.SetReadDeadline(time.Time{})
			continue
		}
		if err != nil {
			u.Logger().Debug().Err(err).Msg("receive failed")
			if !u.deliver(api.CodeOf(err), nil, api.AddressInfo{}) {
				u.stopReceiveLoop()
				return
			}
			continue
		}
		u.mu.Lock()
		peer := u.peer
		u.mu.Unlock()
		if peer != nil && !(peer.IP.Equal(from.IP) && peer.Port == from.Port) {
			continue
		}
		control.DatagramReceived()
		if !u.deliver(n, buf[:n], api.AddressFromNet(from)) {
			u.stopReceiveLoop()
			return
		}
	}
}

func (u *UDP) stopReceiveLoop() {
	u.mu.Lock()
	u.recvRunning = false
	u.mu.Unlock()
}

func (u *UDP) deliver(nread int, data []byte, rinfo api.AddressInfo) bool {
	return u.Loop().PostWait(func() {
		if u.IsClosed() {
			return
		}
		if fn := u.OnMessage; fn != nil {
			fn(nread, u, data, rinfo)
		}
	})
}

// GetSockName returns the bound address.
func (u *UDP) GetSockName() (api.AddressInfo, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return api.AddressInfo{}, api.EBADF
	}
	return api.AddressFromNet(u.conn.LocalAddr()), api.StatusOK
}

// GetPeerName returns the connected peer.
func (u *UDP) GetPeerName() (api.AddressInfo, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.peer == nil {
		return api.AddressInfo{}, api.ENOTCONN
	}
	return api.AddressFromNet(u.peer), api.StatusOK
}

// BufferSize reads (size 0) or sets the receive or send buffer size and
// returns the size the kernel reports afterwards. Linux reports twice the
// size that was set.
func (u *UDP) BufferSize(size int, recv bool) (int, int) {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return 0, api.EBADF
	}
	if size < 0 || size > MaxDatagramSize {
		return 0, api.EINVAL
	}
	rc, err := conn.SyscallConn()
	if err != nil {
		return 0, api.CodeOf(err)
	}
	opt := optSendBuf
	if recv {
		opt = optRecvBuf
	}
	if size > 0 {
		if err := setSockoptInt(rc, opt, size); err != nil {
			return 0, api.CodeOf(err)
		}
	}
	v, err := getSockoptInt(rc, opt)
	if err != nil {
		return 0, api.CodeOf(err)
	}
	return v, api.StatusOK
}

// SetBroadcast toggles SO_BROADCAST.
func (u *UDP) SetBroadcast(on bool) int {
	return u.withConn(func(c *net.UDPConn) error {
		rc, err := c.SyscallConn()
		if err != nil {
			return err
		}
		v := 0
		if on {
			v = 1
		}
		return setSockoptInt(rc, optBroadcast, v)
	})
}

func (u *UDP) withConn(fn func(c *net.UDPConn) error) int {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil || u.IsClosed() {
		return api.EBADF
	}
	return api.CodeOf(fn(conn))
}

func (u *UDP) release() error {
	u.mu.Lock()
	conn := u.conn
	u.conn, u.v4, u.v6, u.peer = nil, nil, nil, nil
	u.receiving = false
	u.mu.Unlock()
	u.ka.Unref()
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
