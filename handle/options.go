// File: handle/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import (
	"github.com/momentics/hioload-wrap/internal/clock"
	"github.com/momentics/hioload-wrap/loop"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options carries the collaborators every handle needs.
type Options struct {
	Loop   *loop.Loop
	Logger zerolog.Logger
	Clock  clock.Clock
}

// Option customizes handle construction.
type Option func(*Options)

// WithLoop runs the handle's callbacks on l instead of loop.Default().
func WithLoop(l *loop.Loop) Option {
	return func(o *Options) {
		o.Loop = l
	}
}

// WithLogger sets the base logger; handles add component and id fields.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithClock overrides the clock used for backoff and retry delays.
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

// BuildOptions applies opts over the defaults.
func BuildOptions(opts []Option) Options {
	o := Options{Logger: log.Logger}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Loop == nil {
		o.Loop = loop.Default()
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	return o
}
