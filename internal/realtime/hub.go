// Package realtime fans out "owner's todos changed" notifications to the
// websocket listeners of that owner. Listeners re-read the full list on each
// notification, so notifications coalesce and carry no payload.
package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// Relay forwards notifications to other server instances.
type Relay interface {
	Publish(ctx context.Context, ownerID string) error
}

// Listener receives change notifications for one owner.
type Listener struct {
	ownerID string
	ch      chan struct{}
	hub     *Hub
	once    sync.Once
}

// C fires at least once after every change to the owner's todos.
func (l *Listener) C() <-chan struct{} { return l.ch }

// Close unregisters the listener. Safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() { l.hub.remove(l) })
}

// Hub tracks listeners per owner.
type Hub struct {
	mu        sync.Mutex
	listeners map[string]map[*Listener]struct{}
	relay     Relay
}

// NewHub creates an empty hub with no relay.
func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[*Listener]struct{})}
}

// SetRelay installs a relay used by Notify. Pass nil to remove it.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// Listen registers a listener for ownerID.
func (h *Hub) Listen(ownerID string) *Listener {
	l := &Listener{ownerID: ownerID, ch: make(chan struct{}, 1), hub: h}
	h.mu.Lock()
	set, ok := h.listeners[ownerID]
	if !ok {
		set = make(map[*Listener]struct{})
		h.listeners[ownerID] = set
	}
	set[l] = struct{}{}
	h.mu.Unlock()
	return l
}

// Count returns the number of registered listeners across all owners.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.listeners {
		n += len(set)
	}
	return n
}

// Notify wakes local listeners for ownerID and publishes to the relay.
func (h *Hub) Notify(ctx context.Context, ownerID string) {
	h.Deliver(ownerID)

	h.mu.Lock()
	relay := h.relay
	h.mu.Unlock()
	if relay == nil {
		return
	}
	if err := relay.Publish(ctx, ownerID); err != nil {
		slog.Warn("relay publish", "owner", ownerID, "err", err)
	}
}

// Deliver wakes local listeners for ownerID without touching the relay.
func (h *Hub) Deliver(ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.listeners[ownerID] {
		select {
		case l.ch <- struct{}{}:
		default:
			// a wakeup is already pending
		}
	}
}

func (h *Hub) remove(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.listeners[l.ownerID]
	delete(set, l)
	if len(set) == 0 {
		delete(h.listeners, l.ownerID)
	}
}
