// File: control/control_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/control"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandleGauge(t *testing.T) {
	before := testutil.ToFloat64(control.ActiveHandles(api.ProviderPipeWrap))
	control.HandleOpened(api.ProviderPipeWrap)
	control.HandleOpened(api.ProviderPipeWrap)
	control.HandleClosed(api.ProviderPipeWrap)
	if got := testutil.ToFloat64(control.ActiveHandles(api.ProviderPipeWrap)); got != before+1 {
		t.Fatalf("active = %v, want %v", got, before+1)
	}
}

func TestAcceptBackoffGauge(t *testing.T) {
	control.SetAcceptBackoff(api.ProviderTCPServerWrap, 40*time.Millisecond)
	if got := testutil.ToFloat64(control.AcceptBackoff(api.ProviderTCPServerWrap)); got != 0.04 {
		t.Fatalf("backoff = %v", got)
	}
	control.SetAcceptBackoff(api.ProviderTCPServerWrap, 0)
	if got := testutil.ToFloat64(control.AcceptBackoff(api.ProviderTCPServerWrap)); got != 0 {
		t.Fatalf("backoff after reset = %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	control.ConnectionAccepted(api.ProviderTCPServerWrap)
	control.DatagramSent()
	rec := httptest.NewRecorder()
	control.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	for _, name := range []string{
		"hioload_accepted_connections_total",
		`hioload_datagrams_total{direction="sent"}`,
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}

func TestProbes(t *testing.T) {
	p := control.NewDebugProbes()
	p.RegisterProbe("a", func() any { return 1 })
	p.RegisterProbe("a", func() any { return 2 })
	p.RegisterProbe("b", func() any { return "x" })
	state := p.DumpState()
	if state["a"] != 2 || state["b"] != "x" {
		t.Fatalf("state = %v", state)
	}
	p.UnregisterProbe("a")
	if _, ok := p.DumpState()["a"]; ok {
		t.Fatal("probe a still registered")
	}
}
