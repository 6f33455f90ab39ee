// Package events implements a small in-process subscriber registry used by
// the syncer to announce sync and connectivity transitions.
package events

import "sync"

// Event names emitted by the client.
type Event string

const (
	SyncCompleted  Event = "sync_completed"
	SyncFailed     Event = "sync_failed"
	NetworkOnline  Event = "network_online"
	NetworkOffline Event = "network_offline"
)

// Handler receives the event payload (may be nil).
type Handler func(payload any)

// Handle identifies a single subscription. Unsubscribing by handle keeps
// duplicate registrations of the same callback independent.
type Handle struct {
	event Event
	id    uint64
}

type subscriber struct {
	id uint64
	fn Handler
}

// Registry dispatches events to subscribers in subscription order.
// Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Event][]subscriber
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[Event][]subscriber)}
}

// Subscribe registers fn for event and returns a handle for Unsubscribe.
func (r *Registry) Subscribe(event Event, fn Handler) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.subs[event] = append(r.subs[event], subscriber{id: r.nextID, fn: fn})
	return Handle{event: event, id: r.nextID}
}

// Unsubscribe removes the subscription identified by h. Unknown handles are
// ignored.
func (r *Registry) Unsubscribe(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.subs[h.event]
	for i, s := range list {
		if s.id == h.id {
			r.subs[h.event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit calls every subscriber of event synchronously, in subscription order.
// The subscriber list is copied first so handlers may subscribe/unsubscribe
// from within a callback.
func (r *Registry) Emit(event Event, payload any) {
	r.mu.Lock()
	list := make([]subscriber, len(r.subs[event]))
	copy(list, r.subs[event])
	r.mu.Unlock()

	for _, s := range list {
		s.fn(payload)
	}
}
