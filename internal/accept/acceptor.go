// File: internal/accept/acceptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package accept

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/control"
	"github.com/momentics/hioload-wrap/internal/clock"
	"github.com/momentics/hioload-wrap/loop"
	"github.com/rs/zerolog"
)

// Source yields inbound connections. net.Listener satisfies it, as does
// the named-pipe instance pool.
type Source interface {
	Accept() (net.Conn, error)
}

// Config wires an Acceptor to its owning server handle.
type Config struct {
	Source   Source
	Backlog  int
	Provider api.ProviderType
	Loop     *loop.Loop
	Clock    clock.Clock
	Logger   zerolog.Logger

	// Connections reports accepted handles that are still open.
	Connections func() int
	// OnAccept wraps c in a handle and hands it to onconnection. It runs
	// on the loop, in accept order.
	OnAccept func(c net.Conn)
	// OnError reports a failed accept attempt. It runs on the loop.
	OnError func(status int)
}

// Acceptor is the accept loop of one listening handle.
type Acceptor struct {
	cfg Config

	mu       sync.Mutex
	backoff  Backoff
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an Acceptor. Nothing runs until Start.
func New(cfg Config) *Acceptor {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Acceptor{cfg: cfg, stop: make(chan struct{})}
}

// Start schedules the loop one tick later so a Stop issued right after
// listen returns wins over the first accept.
func (a *Acceptor) Start() {
	a.cfg.Loop.Post(func() {
		if !a.stopped() {
			go a.run()
		}
	})
}

// Stop ends the loop at its next boundary and wakes a pending backoff.
// The caller closes the Source.
func (a *Acceptor) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// BackoffDelay returns the active backoff delay, ok is false in the
// steady state.
func (a *Acceptor) BackoffDelay() (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.backoff.Delay()
}

func (a *Acceptor) stopped() bool {
	select {
	case <-a.stop:
		return true
	default:
		return false
	}
}

func (a *Acceptor) run() {
	for !a.stopped() {
		if a.cfg.Connections != nil && a.cfg.Connections() > a.cfg.Backlog {
			if !a.sleep() {
				return
			}
			continue
		}

		c, err := a.cfg.Source.Accept()
		if a.stopped() || errors.Is(err, net.ErrClosed) {
			if c != nil {
				_ = c.Close()
			}
			a.cfg.Logger.Debug().Msg("accept loop stopped")
			return
		}
		if err != nil {
			a.cfg.Logger.Warn().Err(err).Msg("accept failed")
			control.AcceptFailed(a.cfg.Provider)
			a.cfg.Loop.Post(func() {
				if a.cfg.OnError != nil && !a.stopped() {
					a.cfg.OnError(api.UNKNOWN)
				}
			})
			if !a.sleep() {
				return
			}
			continue
		}

		a.mu.Lock()
		a.backoff.Reset()
		a.mu.Unlock()
		control.SetAcceptBackoff(a.cfg.Provider, 0)
		control.ConnectionAccepted(a.cfg.Provider)

		delivered := false
		ok := a.cfg.Loop.PostWait(func() {
			if a.stopped() {
				return
			}
			delivered = true
			a.cfg.OnAccept(c)
		})
		if !ok || !delivered {
			_ = c.Close()
			if !ok {
				return
			}
		}
	}
}

// sleep waits out the next backoff delay. It returns false if the
// acceptor was stopped meanwhile.
func (a *Acceptor) sleep() bool {
	a.mu.Lock()
	d := a.backoff.Next()
	a.mu.Unlock()
	control.SetAcceptBackoff(a.cfg.Provider, d)
	a.cfg.Logger.Warn().Dur("delay", d).Msg("accept backoff")
	select {
	case <-a.cfg.Clock.After(d):
		return true
	case <-a.stop:
		return false
	}
}
