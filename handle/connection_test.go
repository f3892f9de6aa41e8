// File: handle/connection_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle_test

import (
	"testing"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/handle"
	"github.com/momentics/hioload-wrap/loop"
	"github.com/rs/zerolog"
)

func TestConnection_AfterConnect(t *testing.T) {
	lp := loop.New().Start()
	defer lp.Stop()
	c := handle.NewConnection(nil, api.ProviderTCPWrap, handle.BuildOptions([]handle.Option{
		handle.WithLoop(lp),
		handle.WithLogger(zerolog.Nop()),
	}), nil)

	type result struct {
		status             int
		readable, writable bool
		req                *api.ConnectReq
	}
	for _, status := range []int{0, api.ECONNREFUSED} {
		got := make(chan result, 1)
		req := &api.ConnectReq{OnComplete: func(st int, _ api.Handle, r *api.ConnectReq, rd, wr bool) {
			got <- result{st, rd, wr, r}
		}}
		c.AfterConnect(req, status)
		r := <-got
		want := status == 0
		if r.status != status || r.readable != want || r.writable != want || r.req != req {
			t.Fatalf("status %d: got %+v", status, r)
		}
	}
}

func TestConnection_AfterConnectSwallowsPanics(t *testing.T) {
	lp := loop.New().Start()
	defer lp.Stop()
	c := handle.NewConnection(nil, api.ProviderTCPWrap, handle.BuildOptions([]handle.Option{
		handle.WithLoop(lp),
		handle.WithLogger(zerolog.Nop()),
	}), nil)
	c.AfterConnect(&api.ConnectReq{OnComplete: func(int, api.Handle, *api.ConnectReq, bool, bool) {
		panic("callback failure")
	}}, 0)
	if !lp.PostWait(func() {}) {
		t.Fatal("loop died after a panicking callback")
	}
}
