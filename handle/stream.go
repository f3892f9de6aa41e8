// File: handle/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stream drives a read loop and a FIFO write loop over an api.Conn.
// The underlying conn may be replaced while operations are in flight
// (in-place protocol upgrade); reads and writes that fail on the old
// conn are retried against the new one.

package handle

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/control"
	"github.com/momentics/hioload-wrap/pool"
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeOp struct {
	req      *api.WriteReq
	data     []byte
	bufs     net.Buffers
	shutdown *api.ShutdownReq
}

func (op writeOp) size() int {
	if op.bufs != nil {
		n := 0
		for _, b := range op.bufs {
			n += len(b)
		}
		return n
	}
	return len(op.data)
}

// Stream is the generic readable/writable handle layer.
type Stream struct {
	*Handle

	// OnRead receives each chunk and its length, or a negative status
	// with a nil buffer. The buffer is reused by the next read; copy it
	// to keep it. Set before ReadStart.
	OnRead func(buf []byte, nread int)

	smu          sync.Mutex
	conn         api.Conn
	rid          uint64
	kicked       bool
	reading      bool
	readRunning  bool
	writes       *queue.Queue
	writeRunning bool
	onDestroy    func(error)

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	queued       atomic.Int64
}

// NewStream creates a stream handle. release runs before the conn is
// closed.
func NewStream(self api.Handle, p api.ProviderType, o Options, release func() error) *Stream {
	s := &Stream{writes: queue.New()}
	s.Handle = NewHandle(self, p, o, func() error {
		var err error
		if release != nil {
			err = release()
		}
		if cerr := s.closeConn(); err == nil {
			err = cerr
		}
		return err
	})
	return s
}

// Attach installs the first conn, e.g. after connect or accept. A pending
// ReadStart begins reading.
func (s *Stream) Attach(c api.Conn) {
	if s.IsClosed() {
		_ = c.Close()
		return
	}
	s.smu.Lock()
	s.conn = c
	s.rid++
	start := s.reading && !s.readRunning
	if start {
		s.readRunning = true
	}
	s.smu.Unlock()
	s.SetRefer(c)
	if start {
		go s.readLoop()
	}
}

// SwapConn replaces the conn in place. A read blocked on the old conn is
// interrupted and retried on c.
func (s *Stream) SwapConn(c api.Conn) error {
	s.smu.Lock()
	old := s.conn
	if old == nil {
		s.smu.Unlock()
		return api.ErrHandleClosed
	}
	s.conn = c
	s.rid++
	if s.readRunning {
		if d, ok := old.(readDeadliner); ok {
			_ = d.SetReadDeadline(time.Unix(1, 0))
			s.kicked = true
		}
	}
	s.smu.Unlock()
	s.SetRefer(c)
	return nil
}

// Conn returns the current conn, nil before Attach or after close.
func (s *Stream) Conn() api.Conn {
	c, _ := s.current()
	return c
}

func (s *Stream) current() (api.Conn, uint64) {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.conn, s.rid
}

// swapped reports whether the conn changed since rid was captured.
func (s *Stream) swapped(rid uint64) bool {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.conn != nil && s.rid != rid
}

func (s *Stream) closeConn() error {
	s.smu.Lock()
	c := s.conn
	s.conn = nil
	s.reading = false
	s.smu.Unlock()
	if c == nil {
		return nil
	}
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// SetOnDestroy registers the owner hook that receives unrecoverable read
// errors instead of onread.
func (s *Stream) SetOnDestroy(fn func(error)) {
	s.smu.Lock()
	s.onDestroy = fn
	s.smu.Unlock()
}

// ReadStart begins the read loop. Calling it while already reading does
// nothing.
func (s *Stream) ReadStart() int {
	if s.IsClosed() {
		return api.EBADF
	}
	s.smu.Lock()
	s.reading = true
	start := s.conn != nil && !s.readRunning
	if start {
		s.readRunning = true
	}
	s.smu.Unlock()
	if start {
		go s.readLoop()
	}
	return api.StatusOK
}

// ReadStop stops the loop after the in-flight read completes.
func (s *Stream) ReadStop() int {
	s.smu.Lock()
	s.reading = false
	s.smu.Unlock()
	return api.StatusOK
}

// IsReading reports whether ReadStart is in effect.
func (s *Stream) IsReading() bool {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.reading
}

func (s *Stream) readLoop() {
	buf := pool.GetReceiveBuffer()
	defer pool.PutReceiveBuffer(buf)
	for {
		s.smu.Lock()
		if !s.reading || s.conn == nil {
			s.readRunning = false
			s.smu.Unlock()
			return
		}
		conn, rid := s.conn, s.rid
		if s.kicked {
			s.kicked = false
			if d, ok := conn.(readDeadliner); ok {
				_ = d.SetReadDeadline(time.Time{})
			}
		}
		s.smu.Unlock()

		n, err := conn.Read(buf)
		if s.IsClosed() {
			s.stopReadLoop()
			return
		}
		if n == 0 && err != nil && s.swapped(rid) {
			continue
		}

		nread := n
		var data []byte
		switch {
		case n > 0:
			data = buf[:n]
			s.bytesRead.Add(uint64(n))
			control.AddBytesRead(s.provider, n)
		case err == nil:
			nread = api.EOF
		default:
			code, ok := readErrorStatus(err)
			if !ok {
				s.stopReadLoop()
				s.Destroy(err)
				return
			}
			nread = code
		}
		if !s.deliver(data, nread) || nread < 0 {
			s.stopReadLoop()
			return
		}
	}
}

func (s *Stream) stopReadLoop() {
	s.smu.Lock()
	s.readRunning = false
	s.smu.Unlock()
}

// deliver runs onread on the loop and waits so the scratch buffer is not
// overwritten while the callback still sees it.
func (s *Stream) deliver(data []byte, nread int) bool {
	return s.loop.PostWait(func() {
		if s.IsClosed() {
			return
		}
		if fn := s.OnRead; fn != nil {
			fn(data, nread)
		}
	})
}

// Destroy hands a fatal error to the owner hook, or to onread as
// UNKNOWN when no owner registered one.
func (s *Stream) Destroy(err error) {
	s.smu.Lock()
	fn := s.onDestroy
	s.smu.Unlock()
	if fn == nil {
		s.deliver(nil, api.UNKNOWN)
		return
	}
	s.log.Debug().Err(err).Msg("destroying stream")
	s.loop.Post(func() { fn(err) })
}

// readErrorStatus classifies a read failure. ok is false for errors the
// owner must handle as fatal.
func readErrorStatus(err error) (int, bool) {
	switch api.CodeOf(err) {
	case api.EOF, api.EBADF, api.EINTR:
		return api.EOF, true
	case api.ECONNRESET, api.ECONNABORTED:
		return api.ECONNRESET, true
	default:
		return api.UNKNOWN, false
	}
}

func writeErrorStatus(err error) int {
	switch code := api.CodeOf(err); code {
	case api.EBADF, api.EPIPE:
		return api.EBADF
	default:
		return code
	}
}

// WriteBuffer queues data. req.Bytes and req.Async are set before the
// call returns; req.OnComplete runs once every byte is written.
func (s *Stream) WriteBuffer(req *api.WriteReq, data []byte) int {
	return s.enqueue(writeOp{req: req, data: data})
}

// Writev writes several chunks. With allBuffers every chunk is a []byte;
// otherwise chunks alternate value and encoding name.
func (s *Stream) Writev(req *api.WriteReq, chunks []any, allBuffers bool) int {
	var parts [][]byte
	if allBuffers {
		for _, c := range chunks {
			b, ok := c.([]byte)
			if !ok {
				return api.EINVAL
			}
			parts = append(parts, b)
		}
	} else {
		for i := 0; i < len(chunks); i += 2 {
			enc := ""
			if i+1 < len(chunks) {
				enc, _ = chunks[i+1].(string)
			}
			b, ok := EncodeChunk(chunks[i], enc)
			if !ok {
				return api.EINVAL
			}
			parts = append(parts, b)
		}
	}
	if len(parts) == 2 {
		if _, ok := s.Conn().(api.VectorWriter); ok {
			return s.enqueue(writeOp{req: req, bufs: net.Buffers{parts[0], parts[1]}})
		}
	}
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	data := make([]byte, 0, size)
	for _, p := range parts {
		data = append(data, p...)
	}
	return s.enqueue(writeOp{req: req, data: data})
}

// WriteUtf8String writes str as UTF-8.
func (s *Stream) WriteUtf8String(req *api.WriteReq, str string) int {
	return s.writeString(req, str, "utf8")
}

// WriteLatin1String writes str as latin1.
func (s *Stream) WriteLatin1String(req *api.WriteReq, str string) int {
	return s.writeString(req, str, "latin1")
}

// WriteAsciiString writes str as 7-bit ASCII.
func (s *Stream) WriteAsciiString(req *api.WriteReq, str string) int {
	return s.writeString(req, str, "ascii")
}

// WriteUcs2String writes str as UTF-16LE.
func (s *Stream) WriteUcs2String(req *api.WriteReq, str string) int {
	return s.writeString(req, str, "ucs2")
}

func (s *Stream) writeString(req *api.WriteReq, str, enc string) int {
	b, _ := encodeString(str, enc)
	return s.WriteBuffer(req, b)
}

// Shutdown half-closes the write side once queued writes are flushed.
// Conns that cannot half-close are closed outright.
func (s *Stream) Shutdown(req *api.ShutdownReq) int {
	return s.enqueue(writeOp{shutdown: req})
}

func (s *Stream) enqueue(op writeOp) int {
	if s.IsClosed() {
		return api.EBADF
	}
	n := op.size()
	if op.req != nil {
		op.req.Bytes = n
		op.req.Async = true
	}
	s.smu.Lock()
	if s.conn == nil {
		s.smu.Unlock()
		return api.ENOTCONN
	}
	s.queued.Add(int64(n))
	s.writes.Add(op)
	start := !s.writeRunning
	if start {
		s.writeRunning = true
	}
	s.smu.Unlock()
	if start {
		go s.writeLoop()
	}
	return api.StatusOK
}

func (s *Stream) writeLoop() {
	for {
		s.smu.Lock()
		if s.writes.Length() == 0 {
			s.writeRunning = false
			s.smu.Unlock()
			return
		}
		op := s.writes.Remove().(writeOp)
		s.smu.Unlock()
		s.perform(op)
	}
}

func (s *Stream) perform(op writeOp) {
	n := op.size()
	defer s.queued.Add(-int64(n))
	if op.shutdown != nil {
		s.doShutdown(op.shutdown)
		return
	}
	if s.IsClosed() {
		s.complete(op.req, api.ECANCELED)
		return
	}
	var err error
	if op.bufs != nil {
		err = s.writeVectored(op.bufs)
	} else {
		err = s.writeAll(op.data)
	}
	if err != nil {
		s.complete(op.req, writeErrorStatus(err))
		return
	}
	s.bytesWritten.Add(uint64(n))
	control.AddBytesWritten(s.provider, n)
	s.complete(op.req, api.StatusOK)
}

func (s *Stream) complete(req *api.WriteReq, status int) {
	if req == nil {
		return
	}
	s.loop.Post(func() { req.Complete(status) })
}

// writeAll loops short writes until data is fully written.
func (s *Stream) writeAll(data []byte) error {
	written := 0
	for written < len(data) {
		conn, rid := s.current()
		if conn == nil {
			return net.ErrClosed
		}
		n, err := conn.Write(data[written:])
		written += n
		if err != nil {
			if s.swapped(rid) {
				continue
			}
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}

func (s *Stream) writeVectored(bufs net.Buffers) error {
	for len(bufs) > 0 {
		conn, rid := s.current()
		if conn == nil {
			return net.ErrClosed
		}
		vw, ok := conn.(api.VectorWriter)
		if !ok {
			var data []byte
			for _, b := range bufs {
				data = append(data, b...)
			}
			return s.writeAll(data)
		}
		if _, err := vw.WriteBuffers(&bufs); err != nil {
			if s.swapped(rid) {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *Stream) doShutdown(req *api.ShutdownReq) {
	status := api.StatusOK
	conn := s.Conn()
	switch hc, ok := conn.(api.HalfCloser); {
	case conn == nil:
		status = api.EBADF
	case ok:
		err := hc.CloseWrite()
		if errors.Is(err, api.ErrNotSupported) {
			status = s.closeWithStatus(nil)
		} else if err != nil {
			status = api.CodeOf(err)
		}
	default:
		status = s.closeWithStatus(nil)
	}
	s.loop.Post(func() { req.Complete(status) })
}

// BytesRead returns the number of bytes delivered to OnRead.
func (s *Stream) BytesRead() uint64 { return s.bytesRead.Load() }

// BytesWritten returns the number of bytes of completed writes.
func (s *Stream) BytesWritten() uint64 { return s.bytesWritten.Load() }

// WriteQueueSize returns the number of bytes queued but not yet written.
func (s *Stream) WriteQueueSize() int { return int(s.queued.Load()) }
