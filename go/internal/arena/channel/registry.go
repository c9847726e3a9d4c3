package channel

import (
	"sort"
	"sync"

	"github.com/mcdev12/roast-arena/go/internal/arena/events"
)

// Handler receives one inbound event
type Handler func(ev *events.Event)

// Registry holds the inbound event handlers. Every registration returns a Subscription that
// removes exactly that handler; there is no removal by event name.
type Registry struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[events.Type]map[uint64]Handler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[events.Type]map[uint64]Handler)}
}

// Subscription is the handle for one registered handler
type Subscription struct {
	id        uint64
	eventType events.Type
	registry  *Registry
	once      sync.Once
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.registry.remove(s.eventType, s.id)
	})
}

// Subscriptions is a set of handles disposed together
type Subscriptions []*Subscription

// Unsubscribe removes every handler in the set.
func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		sub.Unsubscribe()
	}
}

// Subscribe registers h for events of type t.
func (r *Registry) Subscribe(t events.Type, h Handler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	if r.handlers[t] == nil {
		r.handlers[t] = make(map[uint64]Handler)
	}
	r.handlers[t][r.next] = h
	return &Subscription{id: r.next, eventType: t, registry: r}
}

// Dispatch delivers ev to every handler registered for its type, in registration order.
// Handlers run outside the registry lock. Returns the number of handlers called.
func (r *Registry) Dispatch(ev *events.Event) int {
	r.mu.RLock()
	byID := r.handlers[ev.Type]
	ids := make([]uint64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, byID[id])
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return len(handlers)
}

// Len returns the number of registered handlers across all event types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, byID := range r.handlers {
		n += len(byID)
	}
	return n
}

func (r *Registry) remove(t events.Type, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.handlers[t]
	if !ok {
		return
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(r.handlers, t)
	}
}
