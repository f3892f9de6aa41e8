// File: loop/loop.go
// Package loop runs handle callbacks on a single goroutine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// I/O for every handle happens on its own goroutines, but everything the
// application observes (onread, onconnection, oncomplete, close callbacks)
// is posted here and executed one task at a time in FIFO order. Two
// callbacks never run in parallel, matching the cooperative model the
// legacy API was written against.

package loop

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Task is a unit of work executed on the loop goroutine.
type Task func()

// Loop is a single-consumer task queue with a keep-alive reference count.
type Loop struct {
	mu        sync.Mutex
	cond      *sync.Cond
	tasks     *queue.Queue
	refs      int
	executing bool
	running   bool
	stopped   bool
	done      chan struct{}
	stopOnce  sync.Once
	log       zerolog.Logger
	cpu       int
}

// Option customizes a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(l zerolog.Logger) Option {
	return func(lp *Loop) {
		lp.log = l
	}
}

// New creates a Loop. Call Run or Start to begin processing.
func New(opts ...Option) *Loop {
	l := &Loop{
		tasks: queue.New(),
		done:  make(chan struct{}),
		cpu:   -1,
		log:   log.Logger.With().Str("component", "loop").Logger(),
	}
	l.cond = sync.NewCond(&l.mu)
	for _, o := range opts {
		o(l)
	}
	return l
}

var (
	defaultOnce sync.Once
	defaultLoop *Loop
)

// Default returns the process-wide loop, started on first use.
func Default() *Loop {
	defaultOnce.Do(func() {
		defaultLoop = New().Start()
	})
	return defaultLoop
}

// Start runs the loop on a new goroutine and returns it.
func (l *Loop) Start() *Loop {
	go l.Run()
	return l
}

// Run processes tasks until Stop is called. A second concurrent Run
// returns immediately.
func (l *Loop) Run() {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()
	defer l.finish()
	defer l.pin()()

	for {
		l.mu.Lock()
		for l.tasks.Length() == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.mu.Unlock()
			return
		}
		task := l.tasks.Remove().(Task)
		l.executing = true
		l.mu.Unlock()

		l.exec(task)

		l.mu.Lock()
		l.executing = false
		l.cond.Broadcast()
		l.mu.Unlock()
	}
}

func (l *Loop) finish() {
	l.stopOnce.Do(func() { close(l.done) })
}

// exec runs one task; a panic inside it is logged and swallowed so the
// loop keeps serving other handles.
func (l *Loop) exec(task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("callback panicked")
		}
	}()
	task()
}

// Post enqueues a task. It returns false once the loop has stopped.
func (l *Loop) Post(task Task) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.tasks.Add(task)
	l.cond.Broadcast()
	return true
}

// PostWait enqueues a task and blocks until it has run. It returns false
// if the loop stopped before the task executed. Must not be called from
// a task.
func (l *Loop) PostWait(task Task) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		task()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Ref marks one more resource as keeping the loop alive.
func (l *Loop) Ref() {
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
}

// Unref releases a reference taken with Ref.
func (l *Loop) Unref() {
	l.mu.Lock()
	if l.refs > 0 {
		l.refs--
	}
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Refs returns the number of live references.
func (l *Loop) Refs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

// Alive reports whether referenced resources or queued work remain.
func (l *Loop) Alive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.aliveLocked()
}

func (l *Loop) aliveLocked() bool {
	return l.refs > 0 || l.tasks.Length() > 0 || l.executing
}

// Wait blocks until the loop is no longer alive or has been stopped.
func (l *Loop) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.aliveLocked() && !l.stopped {
		l.cond.Wait()
	}
}

// Stop halts the loop. Queued tasks are dropped and Post starts failing.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	running := l.running
	l.cond.Broadcast()
	l.mu.Unlock()
	if !running {
		l.finish()
	}
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
