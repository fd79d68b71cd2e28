package events

import (
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// Hub fans events out to per-student subscribers. A subscriber whose buffer
// is full is dropped; publishers never block.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers a subscriber for studentID. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(studentID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	if h.subs[studentID] == nil {
		h.subs[studentID] = make(map[int]chan Event)
	}
	h.subs[studentID][id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.remove(studentID, id)
	}
}

// remove closes and forgets a subscriber. Callers hold h.mu.
func (h *Hub) remove(studentID string, id int) {
	ch, ok := h.subs[studentID][id]
	if !ok {
		return
	}
	close(ch)
	delete(h.subs[studentID], id)
	if len(h.subs[studentID]) == 0 {
		delete(h.subs, studentID)
	}
}

// Publish delivers e to every subscriber of e.StudentID.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs[e.StudentID] {
		select {
		case ch <- e:
		default:
			slog.Warn("dropping slow event subscriber", "student_id", e.StudentID)
			h.remove(e.StudentID, id)
		}
	}
}

// Subscribers returns the number of live subscribers for studentID.
func (h *Hub) Subscribers(studentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[studentID])
}
