// File: wsconn/conn_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wsconn_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/handle"
	"github.com/momentics/hioload-wrap/loop"
	"github.com/momentics/hioload-wrap/wsconn"
	"github.com/rs/zerolog"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newLoop(t *testing.T) *loop.Loop {
	t.Helper()
	lp := loop.New(loop.WithLogger(zerolog.Nop())).Start()
	t.Cleanup(lp.Stop)
	return lp
}

func TestConn_ReadsMessagesAsStream(t *testing.T) {
	lp := newLoop(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := wsconn.Upgrade(w, r, lp)
		if err != nil {
			t.Error(err)
			return
		}
		c.Write([]byte("ab"))
		c.Write([]byte("cd"))
		c.CloseWrite()
	}))
	defer srv.Close()

	c, err := wsconn.Dial(context.Background(), wsURL(srv), lp)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	var got []byte
	buf := make([]byte, 1)
	for {
		n, err := c.Read(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if string(got) != "abcd" {
		t.Fatalf("read %q", got)
	}
	if _, err := c.Write([]byte("x")); err == nil {
		t.Fatal("write after close handshake succeeded")
	}
}

func TestConn_CloseWriteThenPeerCloseReadsEOF(t *testing.T) {
	lp := newLoop(t)
	served := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := wsconn.Upgrade(w, r, lp)
		if err != nil {
			served <- err
			return
		}
		_, err = io.ReadAll(c)
		served <- err
	}))
	defer srv.Close()

	c, err := wsconn.Dial(context.Background(), wsURL(srv), lp)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("server read: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw end of stream")
	}
	if n, err := c.Read(make([]byte, 8)); n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("Read after close handshake = %d, %v", n, err)
	}
}

func TestTunnel_Echo(t *testing.T) {
	lp := newLoop(t)
	opts := []handle.Option{handle.WithLoop(lp), handle.WithLogger(zerolog.Nop())}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := wsconn.Upgrade(w, r, lp)
		if err != nil {
			t.Error(err)
			return
		}
		tun := wsconn.Open(c, opts...)
		tun.OnRead = func(buf []byte, nread int) {
			if nread < 0 {
				tun.Close(nil)
				return
			}
			tun.WriteBuffer(&api.WriteReq{}, append([]byte(nil), buf...))
		}
		tun.ReadStart()
	}))
	defer srv.Close()

	c, err := wsconn.Dial(context.Background(), wsURL(srv), lp)
	if err != nil {
		t.Fatal(err)
	}
	tun := wsconn.Open(c, opts...)
	defer tun.Close(nil)

	got := make(chan string, 4)
	eof := make(chan struct{})
	tun.OnRead = func(buf []byte, nread int) {
		if nread == api.EOF {
			close(eof)
			return
		}
		got <- string(buf)
	}
	if st := tun.ReadStart(); st != api.StatusOK {
		t.Fatalf("ReadStart = %s", api.ErrName(st))
	}
	done := make(chan int, 1)
	if st := tun.WriteUtf8String(&api.WriteReq{OnComplete: func(st int) { done <- st }}, "ping"); st != api.StatusOK {
		t.Fatalf("write = %s", api.ErrName(st))
	}
	select {
	case st := <-done:
		if st != api.StatusOK {
			t.Fatalf("write completed with %s", api.ErrName(st))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write never completed")
	}
	select {
	case s := <-got:
		if s != "ping" {
			t.Fatalf("echo = %q", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no echo")
	}

	if info, st := tun.GetPeerName(); st != api.StatusOK || info.Port == 0 {
		t.Fatalf("GetPeerName = %+v, %s", info, api.ErrName(st))
	}

	tun.Shutdown(&api.ShutdownReq{})
	select {
	case <-eof:
	case <-time.After(5 * time.Second):
		t.Fatal("no EOF after shutdown")
	}
}

func TestDial_RejectsPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()
	_, err := wsconn.Dial(context.Background(), wsURL(srv), newLoop(t))
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("Dial error = %v", err)
	}
}
