// File: handle/stream_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle_test

import (
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/fake"
	"github.com/momentics/hioload-wrap/handle"
	"github.com/momentics/hioload-wrap/loop"
	"github.com/rs/zerolog"
)

type readEvent struct {
	data  string
	nread int
}

func newStream(t *testing.T) (*handle.Stream, *fake.Conn, chan readEvent) {
	t.Helper()
	lp := loop.New().Start()
	t.Cleanup(lp.Stop)
	s := handle.NewStream(nil, api.ProviderTCPWrap, handle.BuildOptions([]handle.Option{
		handle.WithLoop(lp),
		handle.WithLogger(zerolog.Nop()),
	}), nil)
	events := make(chan readEvent, 16)
	s.OnRead = func(buf []byte, nread int) {
		events <- readEvent{data: string(buf), nread: nread}
	}
	c := fake.NewConn()
	s.Attach(c)
	return s, c, events
}

func nextEvent(t *testing.T, ch <-chan readEvent) readEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for onread")
	}
	return readEvent{}
}

func expectQuiet(t *testing.T, ch <-chan readEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected onread %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStream_ReadStartTwiceDeliversOnce(t *testing.T) {
	s, c, events := newStream(t)
	if st := s.ReadStart(); st != 0 {
		t.Fatalf("ReadStart = %d", st)
	}
	if st := s.ReadStart(); st != 0 {
		t.Fatalf("second ReadStart = %d", st)
	}
	for _, chunk := range []string{"a", "bb", "ccc"} {
		c.PushRead([]byte(chunk))
	}
	for _, want := range []string{"a", "bb", "ccc"} {
		ev := nextEvent(t, events)
		if ev.data != want || ev.nread != len(want) {
			t.Fatalf("got %+v, want %q", ev, want)
		}
	}
	expectQuiet(t, events)
	if got := s.BytesRead(); got != 6 {
		t.Fatalf("BytesRead = %d, want 6", got)
	}
}

func TestStream_ReadErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"eof", nil, api.EOF},
		{"reset", syscall.ECONNRESET, api.ECONNRESET},
		{"aborted", syscall.ECONNABORTED, api.ECONNRESET},
		{"closed", net.ErrClosed, api.EOF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, c, events := newStream(t)
			s.ReadStart()
			if tc.err == nil {
				c.PushEOF()
			} else {
				c.PushError(tc.err)
			}
			ev := nextEvent(t, events)
			if ev.nread != tc.want || ev.data != "" {
				t.Fatalf("got %+v, want nread %d", ev, tc.want)
			}
			expectQuiet(t, events)
		})
	}
}

func TestStream_FatalReadErrorGoesToOwner(t *testing.T) {
	s, c, events := newStream(t)
	destroyed := make(chan error, 1)
	s.SetOnDestroy(func(err error) { destroyed <- err })
	s.ReadStart()
	boom := errors.New("boom")
	c.PushError(boom)
	select {
	case err := <-destroyed:
		if !errors.Is(err, boom) {
			t.Fatalf("destroy hook got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("destroy hook not called")
	}
	expectQuiet(t, events)
}

func TestStream_ReadStopHaltsAfterInFlightRead(t *testing.T) {
	s, c, events := newStream(t)
	s.ReadStart()
	c.PushRead([]byte("one"))
	nextEvent(t, events)
	s.ReadStop()
	if s.IsReading() {
		t.Fatal("IsReading after ReadStop")
	}
	// The read already in flight may still deliver, nothing after it.
	c.PushRead([]byte("two"))
	c.PushRead([]byte("three"))
	select {
	case ev := <-events:
		if ev.data != "two" {
			t.Fatalf("unexpected onread %+v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
	expectQuiet(t, events)
}

func TestStream_PartialWritesCompleteOnce(t *testing.T) {
	s, c, _ := newStream(t)
	c.SetMaxWrite(3)
	done := make(chan int, 4)
	req := &api.WriteReq{OnComplete: func(status int) { done <- status }}
	data := []byte("0123456789")
	if st := s.WriteBuffer(req, data); st != 0 {
		t.Fatalf("WriteBuffer = %d", st)
	}
	if req.Bytes != len(data) || !req.Async {
		t.Fatalf("req = %+v", req)
	}
	select {
	case st := <-done:
		if st != 0 {
			t.Fatalf("oncomplete(%d)", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write did not complete")
	}
	select {
	case st := <-done:
		t.Fatalf("second oncomplete(%d)", st)
	case <-time.After(50 * time.Millisecond):
	}
	if got := string(c.Written()); got != string(data) {
		t.Fatalf("written %q", got)
	}
	if n := c.WriteCalls(); n != 4 {
		t.Fatalf("WriteCalls = %d, want 4", n)
	}
	if s.BytesWritten() != 10 || s.WriteQueueSize() != 0 {
		t.Fatalf("BytesWritten=%d WriteQueueSize=%d", s.BytesWritten(), s.WriteQueueSize())
	}
}

func TestStream_WriteErrorStatus(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"broken pipe": {syscall.EPIPE, api.EBADF},
		"reset":       {syscall.ECONNRESET, api.ECONNRESET},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s, c, _ := newStream(t)
			c.SetWriteError(tc.err)
			done := make(chan int, 1)
			s.WriteBuffer(&api.WriteReq{OnComplete: func(st int) { done <- st }}, []byte("x"))
			select {
			case st := <-done:
				if st != tc.want {
					t.Fatalf("status %d, want %d", st, tc.want)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("write did not complete")
			}
		})
	}
}

func TestStream_WritevEncodesAndConcatenates(t *testing.T) {
	s, c, _ := newStream(t)
	done := make(chan int, 1)
	req := &api.WriteReq{OnComplete: func(st int) { done <- st }}
	chunks := []any{"he", "utf8", []byte("ll"), "buffer", "6f", "hex"}
	if st := s.Writev(req, chunks, false); st != 0 {
		t.Fatalf("Writev = %d", st)
	}
	<-done
	if got := string(c.Written()); got != "hello" {
		t.Fatalf("written %q", got)
	}
	if st := s.Writev(&api.WriteReq{}, []any{"x"}, true); st != api.EINVAL {
		t.Fatalf("non-buffer chunk with allBuffers = %d, want EINVAL", st)
	}
	if st := s.Writev(&api.WriteReq{}, []any{"x", "klingon"}, false); st != api.EINVAL {
		t.Fatalf("unknown encoding = %d, want EINVAL", st)
	}
}

func TestStream_SwapConnRetriesPendingRead(t *testing.T) {
	s, _, events := newStream(t)
	s.ReadStart()
	next := fake.NewConn()
	if err := s.SwapConn(next); err != nil {
		t.Fatal(err)
	}
	next.PushRead([]byte("upgraded"))
	ev := nextEvent(t, events)
	if ev.data != "upgraded" {
		t.Fatalf("got %+v after swap", ev)
	}
}

func TestStream_ShutdownWithoutHalfCloseClosesHandle(t *testing.T) {
	s, c, _ := newStream(t)
	done := make(chan int, 1)
	if st := s.Shutdown(&api.ShutdownReq{OnComplete: func(st int) { done <- st }}); st != 0 {
		t.Fatalf("Shutdown = %d", st)
	}
	select {
	case st := <-done:
		if st != 0 {
			t.Fatalf("shutdown status %d", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	if !s.IsClosed() || !c.Closed() {
		t.Fatal("shutdown should close the handle and its conn")
	}
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	s, c, _ := newStream(t)
	calls := make(chan struct{}, 2)
	s.Close(func() { calls <- struct{}{} })
	s.Close(func() { calls <- struct{}{} })
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatal("close callback not run")
		}
	}
	if !c.Closed() {
		t.Fatal("conn not closed")
	}
	if st := s.ReadStart(); st != api.EBADF {
		t.Fatalf("ReadStart after close = %d", st)
	}
	if st := s.WriteBuffer(&api.WriteReq{}, []byte("x")); st != api.EBADF {
		t.Fatalf("WriteBuffer after close = %d", st)
	}
}

func TestStream_RefFollowsConn(t *testing.T) {
	s, c, _ := newStream(t)
	if c.Refs() != 1 || !s.HasRef() {
		t.Fatalf("attached conn refs = %d", c.Refs())
	}
	s.Unref()
	s.Unref()
	if c.Refs() != 0 || s.HasRef() {
		t.Fatalf("after Unref refs = %d", c.Refs())
	}
	s.Ref()
	if c.Refs() != 1 {
		t.Fatalf("after Ref refs = %d", c.Refs())
	}
	s.Close(nil)
	if c.Refs() != 0 || s.HasRef() {
		t.Fatalf("after Close refs = %d", c.Refs())
	}
}
