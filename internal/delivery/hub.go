package delivery

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNoListener means no subscriber is attached to the surface yet.
	ErrNoListener = errors.New("delivery: surface has no listener")
	// ErrBusy means every subscriber's buffer is full.
	ErrBusy = errors.New("delivery: surface buffer full")
)

// Hub fans messages out to in-process subscribers keyed by surface name
// (one per open SSE stream). Send never blocks.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

// Subscription receives messages for one surface until Close is called.
type Subscription struct {
	C       <-chan Message
	c       chan Message
	hub     *Hub
	surface string
	once    sync.Once
}

// NewHub returns a hub whose subscriptions buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 8
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe attaches a listener to surface.
func (h *Hub) Subscribe(surface string) *Subscription {
	c := make(chan Message, h.buffer)
	s := &Subscription{C: c, c: c, hub: h, surface: surface}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[surface] == nil {
		h.subs[surface] = make(map[*Subscription]struct{})
	}
	h.subs[surface][s] = struct{}{}
	return s
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set := h.subs[s.surface]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.surface)
			}
		}
		h.mu.Unlock()
		close(s.c)
	})
}

// Listeners returns the number of subscribers on surface.
func (h *Hub) Listeners(surface string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[surface])
}

// Send offers msg to every subscriber of msg.Surface. It succeeds when at
// least one subscriber accepted the message.
func (h *Hub) Send(_ context.Context, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.subs[msg.Surface]
	if len(set) == 0 {
		return ErrNoListener
	}
	accepted := 0
	for s := range set {
		select {
		case s.c <- msg:
			accepted++
		default:
		}
	}
	if accepted == 0 {
		return ErrBusy
	}
	return nil
}
