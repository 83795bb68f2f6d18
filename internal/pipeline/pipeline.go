// Package pipeline runs a reducer without a terminal. It gives the same
// guarantee as a bubbletea program: one goroutine applies messages in
// dispatch order, and commands run concurrently with their results queued
// behind whatever was dispatched before them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Reducer applies one message to the state.
type Reducer[S any] func(S, tea.Msg) (S, tea.Cmd)

// Store owns a state value and the queue of messages feeding it.
type Store[S any] struct {
	reduce Reducer[S]
	log    *slog.Logger

	mu      sync.Mutex
	queue   []tea.Msg
	wake    chan struct{}
	state   S
	changed chan struct{}
	steps   uint64
	// queued and done count messages in and out of the queue
	queued uint64
	done   uint64
}

// New returns a store holding initial. Messages are processed once Run starts.
func New[S any](initial S, reduce Reducer[S]) *Store[S] {
	return &Store[S]{
		reduce:  reduce,
		log:     slog.Default(),
		wake:    make(chan struct{}, 1),
		state:   initial,
		changed: make(chan struct{}),
	}
}

// WithLogger sets the logger used for action tracing.
func (s *Store[S]) WithLogger(l *slog.Logger) *Store[S] {
	s.log = l
	return s
}

// Dispatch queues msg. It never blocks.
func (s *Store[S]) Dispatch(msg tea.Msg) {
	s.enqueue(msg)
}

// Send queues msg and waits until it has been applied. The returned state
// includes msg and anything applied before it; command results may or may
// not have landed yet.
func (s *Store[S]) Send(ctx context.Context, msg tea.Msg) (S, error) {
	seq := s.enqueue(msg)
	for {
		s.mu.Lock()
		st, ch, done := s.state, s.changed, s.done
		s.mu.Unlock()
		if done >= seq {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// enqueue returns the position of msg in the overall message order.
func (s *Store[S]) enqueue(msg tea.Msg) uint64 {
	s.mu.Lock()
	if msg == nil {
		seq := s.queued
		s.mu.Unlock()
		return seq
	}
	s.queue = append(s.queue, msg)
	s.queued++
	seq := s.queued
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return seq
}

// State returns the current state.
func (s *Store[S]) State() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Steps returns how many messages have been applied.
func (s *Store[S]) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// Run processes messages until ctx is done.
func (s *Store[S]) Run(ctx context.Context) error {
	for {
		msg, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}
		s.apply(ctx, msg)
	}
}

func (s *Store[S]) pop() (tea.Msg, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	msg := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return msg, true
}

func (s *Store[S]) apply(ctx context.Context, msg tea.Msg) {
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, cmd := range batch {
			s.exec(ctx, cmd)
		}
		s.mu.Lock()
		s.done++
		s.notify()
		s.mu.Unlock()
		return
	}

	s.log.Debug("action", "type", fmt.Sprintf("%T", msg))

	// Only this goroutine writes state, so reducing outside the lock is safe.
	s.mu.Lock()
	cur := s.state
	s.mu.Unlock()

	next, cmd := s.reduce(cur, msg)

	s.mu.Lock()
	s.state = next
	s.steps++
	s.done++
	s.notify()
	s.mu.Unlock()

	s.exec(ctx, cmd)
}

// notify wakes WaitFor and Send callers. mu must be held.
func (s *Store[S]) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// exec runs cmd on its own goroutine and queues its result.
func (s *Store[S]) exec(ctx context.Context, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("command panic", "panic", r)
			}
		}()
		msg := cmd()
		if ctx.Err() != nil {
			return
		}
		s.Dispatch(msg)
	}()
}

// WaitFor blocks until pred holds for the state or ctx is done, and
// returns the state it last saw.
func (s *Store[S]) WaitFor(ctx context.Context, pred func(S) bool) (S, error) {
	for {
		s.mu.Lock()
		st, ch := s.state, s.changed
		s.mu.Unlock()
		if pred(st) {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}
