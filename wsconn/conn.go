// File: wsconn/conn.go
// Package wsconn carries a byte stream over a websocket so a stream
// handle can tunnel through HTTP infrastructure.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Each Write becomes one binary message. Reads concatenate incoming
// binary and text messages into a single stream. A normal close frame
// reads as end of stream, any other close code as a connection reset.

package wsconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/handle"
	"github.com/momentics/hioload-wrap/loop"
)

// WriteTimeout bounds a single message or control frame write.
const WriteTimeout = 10 * time.Second

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// Upgrader accepts tunnel connections on the server side.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Conn adapts a websocket connection to api.Conn.
type Conn struct {
	ws *websocket.Conn
	ka *handle.KeepAlive

	rmu sync.Mutex
	r   io.Reader

	wmu sync.Mutex
}

var (
	_ api.Conn       = (*Conn)(nil)
	_ api.HalfCloser = (*Conn)(nil)
	_ api.Addresser  = (*Conn)(nil)
)

// New wraps ws. The adapter starts unreferenced.
func New(ws *websocket.Conn, l *loop.Loop) *Conn {
	c := &Conn{ws: ws, ka: handle.NewKeepAlive(l)}
	ws.SetCloseHandler(c.onClose)
	return c
}

// onClose answers the peer's close frame unless CloseWrite already sent
// ours. The read that saw the frame then reports its close code.
func (c *Conn) onClose(code int, _ string) error {
	if code == websocket.CloseNoStatusReceived {
		code = websocket.CloseNormalClosure
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	msg := websocket.FormatCloseMessage(code, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteTimeout))
	return nil
}

// Dial opens a tunnel to a ws:// or wss:// URL.
func Dial(ctx context.Context, url string, l *loop.Loop) (*Conn, error) {
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, body)
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}
	return New(ws, l), nil
}

// Upgrade completes a server-side handshake.
func Upgrade(w http.ResponseWriter, r *http.Request, l *loop.Loop) (*Conn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return New(ws, l), nil
}

// Read returns bytes from the current message, moving to the next one
// when it is exhausted.
func (c *Conn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	for {
		if c.r == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, readError(err)
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if errors.Is(err, io.EOF) {
			c.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func readError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway {
			return io.EOF
		}
		return fmt.Errorf("websocket closed with %d: %w", ce.Code, syscall.ECONNRESET)
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("websocket: %w", syscall.ECONNRESET)
	}
	return err
}

// Write sends p as one binary message.
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return 0, fmt.Errorf("websocket: %w", syscall.EPIPE)
		}
		return 0, err
	}
	return len(p), nil
}

// CloseWrite sends a normal close frame. The peer reads end of stream
// and reads on this side stay open until its close frame arrives.
func (c *Conn) CloseWrite() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteTimeout))
}

// Close closes the underlying connection without a close handshake.
func (c *Conn) Close() error {
	c.ka.Unref()
	err := c.ws.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Conn) Ref()   { c.ka.Ref() }
func (c *Conn) Unref() { c.ka.Unref() }

func (c *Conn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }
