package session

import (
	"sort"
	"sync"

	"github.com/danmuck/dlport/internal/logging"
	"github.com/danmuck/dlport/internal/observability"
	"github.com/danmuck/dlport/internal/protocol"
	"github.com/google/uuid"
)

// Handler receives the still-encoded payload of one pushed event.
type Handler func(data protocol.Raw)

// Subscription identifies one registered handler.
type Subscription struct {
	ID   uuid.UUID
	Kind string
}

func (s Subscription) Valid() bool {
	return s.ID != uuid.Nil
}

type subscriber struct {
	id uuid.UUID
	fn Handler
}

// EventHub fans pushed peer events out to subscribers. It does not know about
// the channel, so subscriptions outlive disconnects.
type EventHub struct {
	mu   sync.RWMutex
	subs map[string][]subscriber
}

func NewEventHub() *EventHub {
	return &EventHub{
		subs: make(map[string][]subscriber),
	}
}

// Subscribe registers fn for kind. A nil fn is not registered and yields an
// invalid Subscription.
func (h *EventHub) Subscribe(kind string, fn Handler) Subscription {
	if fn == nil {
		return Subscription{Kind: kind}
	}
	sub := Subscription{ID: uuid.New(), Kind: kind}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[kind] = append(h.subs[kind], subscriber{id: sub.ID, fn: fn})
	return sub
}

func (h *EventHub) Unsubscribe(sub Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[sub.Kind]
	for i, s := range list {
		if s.id != sub.ID {
			continue
		}
		next := make([]subscriber, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(h.subs, sub.Kind)
		} else {
			h.subs[sub.Kind] = next
		}
		return true
	}
	return false
}

// Publish calls every handler subscribed to kind at the time of the call, in
// subscription order. A panicking handler is logged and skipped. Returns the
// number of handlers that completed.
func (h *EventHub) Publish(kind string, data protocol.Raw) int {
	h.mu.RLock()
	list := h.subs[kind]
	h.mu.RUnlock()

	observability.RecordEvent(kind)
	delivered := 0
	for _, s := range list {
		if deliver(kind, s, data) {
			delivered++
		}
	}
	return delivered
}

func (h *EventHub) Count(kind string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[kind])
}

// Kinds lists event kinds with at least one subscriber.
func (h *EventHub) Kinds() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.subs))
	for kind := range h.subs {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

func deliver(kind string, s subscriber, data protocol.Raw) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			observability.RecordHandlerPanic(kind)
			logger := logging.Component("session")
			logger.Error().
				Str("kind", kind).
				Str("subscription", s.id.String()).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	s.fn(data)
	return true
}
