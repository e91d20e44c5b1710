// Package uiloop runs closures one at a time on a single goroutine. It plays
// the role of a screen's UI thread: every list, marker, and route mutation
// is posted here, and async results from fetches, location updates, and
// routing calls are marshaled back through Post.
package uiloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neexbeast/campusnav/internal/queue"
)

// ErrClosed is returned by Do once the loop has stopped.
var ErrClosed = errors.New("ui loop closed")

type task struct {
	run  func()
	drop func()
}

// Loop is a single-threaded executor. Post never blocks, so tasks may post
// follow-up tasks to their own loop.
type Loop struct {
	tasks *queue.Queue[task]
	wake  chan struct{}
	done  chan struct{}
	log   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a loop. Call Run to start draining it.
func New(log *slog.Logger) *Loop {
	return &Loop{
		tasks: queue.New[task](),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		log:   log,
	}
}

// Post enqueues fn. It reports false, dropping fn, when the loop is closed.
func (l *Loop) Post(fn func()) bool {
	return l.enqueue(task{run: fn})
}

// PostOrDrop enqueues fn. Exactly one of fn or drop runs: fn on the loop,
// or drop on the caller's or closer's goroutine when the loop is closed
// before fn gets its turn.
func (l *Loop) PostOrDrop(fn, drop func()) {
	t := task{run: fn, drop: drop}
	if !l.enqueue(t) {
		t.discard()
	}
}

func (l *Loop) enqueue(t task) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.tasks.Push(t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (t task) discard() {
	if t.drop != nil {
		t.drop()
	}
}

// Do runs fn on the loop and waits for it to finish.
// It must not be called from the loop goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("waiting for ui loop: %w", ctx.Err())
	}
}

// Run drains tasks until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) {
	for {
		l.runPending()

		select {
		case <-ctx.Done():
			l.Close()
			return
		case <-l.done:
			return
		case <-l.wake:
		}
	}
}

// Close stops the loop. Pending tasks are discarded; their drop hooks run
// on the calling goroutine.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	pending := l.tasks.Drain()
	l.mu.Unlock()

	for _, t := range pending {
		t.discard()
	}
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) runPending() {
	for {
		select {
		case <-l.done:
			return
		default:
		}

		t, ok := l.tasks.Pop()
		if !ok {
			return
		}
		l.run(t.run)
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("ui task panicked", "recover", r)
		}
	}()
	fn()
}
