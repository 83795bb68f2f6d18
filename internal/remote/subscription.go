package remote

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/marcus/todos/internal/models"
	"github.com/marcus/todos/internal/syncclient"
)

// Registry tracks the live subscription for each owner. Adapters built for
// the same owner must share one Registry for the one-per-owner rule to hold
// across them.
//
// Each Subscribe takes a ticket before dialing. Only the holder of the
// owner's latest ticket may register, so overlapping calls settle on the one
// that started last regardless of which dial finishes first.
type Registry struct {
	mu   sync.Mutex
	subs map[string]*Subscription
	seq  map[string]uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[string]*Subscription),
		seq:  make(map[string]uint64),
	}
}

// Live returns the number of registered subscriptions.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// begin issues the owner's next ticket and removes the owner's current
// subscription, which the caller must close. A caller whose ctx is already
// done gets no ticket and leaves the registry untouched.
func (r *Registry) begin(ctx context.Context, owner string) (uint64, *Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	r.seq[owner]++
	prev := r.subs[owner]
	delete(r.subs, owner)
	return r.seq[owner], prev, nil
}

// put registers s if ticket is still the owner's latest and returns whatever
// it displaced. ok is false when a newer begin has happened; s is then not
// registered and the caller must close it.
func (r *Registry) put(s *Subscription, ticket uint64) (prev *Subscription, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seq[s.owner] != ticket {
		return nil, false
	}
	prev = r.subs[s.owner]
	r.subs[s.owner] = s
	return prev, true
}

func (r *Registry) release(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[s.owner] == s {
		delete(r.subs, s.owner)
	}
}

// Subscription delivers full-list snapshots for one owner until closed or
// until the connection drops. A dropped connection is reported as one
// NetworkUnavailable snapshot before the channel closes.
type Subscription struct {
	owner  string
	stream *syncclient.Stream
	reg    *Registry

	ch   chan models.Snapshot
	done chan struct{}
	once sync.Once
}

func newSubscription(owner string, stream *syncclient.Stream, reg *Registry) *Subscription {
	s := &Subscription{
		owner:  owner,
		stream: stream,
		reg:    reg,
		ch:     make(chan models.Snapshot, 1),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// Snapshots returns the delivery channel.
func (s *Subscription) Snapshots() <-chan models.Snapshot { return s.ch }

// Close stops delivery and releases the connection. Safe to call repeatedly.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.stream.Close()
		s.reg.release(s)
	})
	return err
}

func (s *Subscription) pump() {
	defer close(s.ch)
	for {
		todos, err := s.stream.Next()
		if err == nil {
			if !s.send(models.Snapshot{Todos: todos}) {
				return
			}
			continue
		}
		if errors.Is(err, syncclient.ErrStreamClosed) {
			return
		}
		slog.Debug("subscription error", "owner", s.owner, "err", err)
		if !s.send(models.Snapshot{Err: classifyStore("listen", err)}) {
			return
		}
		// A bad frame leaves the connection usable; anything else ends it.
		if !errors.Is(err, syncclient.ErrMalformed) {
			s.Close()
			return
		}
	}
}

func (s *Subscription) send(snap models.Snapshot) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- snap:
		return true
	case <-s.done:
		return false
	}
}
