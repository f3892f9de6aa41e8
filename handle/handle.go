// File: handle/handle.go
// Package handle implements the lifecycle, stream and connection layers
// shared by the TCP, pipe and UDP handles.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/control"
	"github.com/momentics/hioload-wrap/internal/clock"
	"github.com/momentics/hioload-wrap/loop"
	"github.com/rs/zerolog"
)

var lastAsyncID atomic.Uint64

// Handle is the base lifecycle object. Concrete handles embed it and pass
// a release hook that frees their host resources.
type Handle struct {
	id       uint64
	provider api.ProviderType
	self     api.Handle
	loop     *loop.Loop
	log      zerolog.Logger
	clock    clock.Clock
	release  func() error

	mu      sync.Mutex
	closed  bool
	refed   bool
	refer   api.Refer
	onClose []func()
}

// NewHandle creates a handle for self. release runs once, from Close.
func NewHandle(self api.Handle, p api.ProviderType, o Options, release func() error) *Handle {
	id := lastAsyncID.Add(1)
	h := &Handle{
		id:       id,
		provider: p,
		self:     self,
		loop:     o.Loop,
		clock:    o.Clock,
		release:  release,
		refed:    true,
	}
	h.log = o.Logger.With().
		Str("component", strings.ToLower(p.String())).
		Uint64("handle", id).
		Logger()
	control.HandleOpened(p)
	return h
}

// AsyncID returns the handle's monotonic id.
func (h *Handle) AsyncID() uint64 { return h.id }

// ProviderType returns the provider tag set at construction.
func (h *Handle) ProviderType() api.ProviderType { return h.provider }

// Loop returns the loop callbacks run on.
func (h *Handle) Loop() *loop.Loop { return h.loop }

// Logger returns the handle-scoped logger.
func (h *Handle) Logger() *zerolog.Logger { return &h.log }

// Clock returns the handle's clock.
func (h *Handle) Clock() clock.Clock { return h.clock }

// Self returns the concrete handle this base belongs to.
func (h *Handle) Self() api.Handle { return h.self }

// IsClosed reports whether Close has been called.
func (h *Handle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// OnClose registers fn to run synchronously when the handle closes.
func (h *Handle) OnClose(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		go fn()
		return
	}
	h.onClose = append(h.onClose, fn)
}

// Close releases host resources and schedules cb on the loop. A second
// Close only schedules cb.
func (h *Handle) Close(cb func()) {
	h.closeWithStatus(cb)
}

func (h *Handle) closeWithStatus(cb func()) int {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		if cb != nil {
			h.loop.Post(cb)
		}
		return api.StatusOK
	}
	h.closed = true
	hooks := h.onClose
	h.onClose = nil
	refer := h.refer
	refed := h.refed
	h.refer = nil
	h.mu.Unlock()

	status := api.StatusOK
	if h.release != nil {
		if err := h.release(); err != nil {
			status = api.CodeOf(err)
			h.log.Debug().Err(err).Msg("release failed")
		}
	}
	if refer != nil && refed {
		refer.Unref()
	}
	control.HandleClosed(h.provider)
	for _, fn := range hooks {
		fn()
	}
	if cb != nil {
		h.loop.Post(cb)
	}
	return status
}

// Ref makes the handle keep the loop alive.
func (h *Handle) Ref() {
	h.mu.Lock()
	if h.refed || h.closed {
		h.mu.Unlock()
		return
	}
	h.refed = true
	r := h.refer
	h.mu.Unlock()
	if r != nil {
		r.Ref()
	}
}

// Unref lets the loop exit while the handle is still open.
func (h *Handle) Unref() {
	h.mu.Lock()
	if !h.refed {
		h.mu.Unlock()
		return
	}
	h.refed = false
	r := h.refer
	h.mu.Unlock()
	if r != nil {
		r.Unref()
	}
}

// HasRef reports whether the handle is referenced.
func (h *Handle) HasRef() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refed && !h.closed
}

// SetRefer installs the resource that carries the loop reference. The
// previous one, if any, drops its reference.
func (h *Handle) SetRefer(r api.Refer) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	old := h.refer
	h.refer = r
	refed := h.refed
	h.mu.Unlock()
	if old == r || !refed {
		return
	}
	if old != nil {
		old.Unref()
	}
	if r != nil {
		r.Ref()
	}
}

// Post schedules fn on the handle's loop.
func (h *Handle) Post(fn func()) bool {
	return h.loop.Post(fn)
}
