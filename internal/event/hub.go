// Package event fans dialogue message events out to in-process subscribers.
package event

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// EventType names a dialogue event.
type EventType string

const EventTypeMessageCreated EventType = "message_created"

// Event is one notification about a dialogue. Data holds the JSON-encoded message.
type Event struct {
	Type       EventType       `json:"type"`
	DialogueID string          `json:"dialogue_id"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Publisher emits dialogue events.
type Publisher interface {
	Publish(event Event)
}

// Subscriber receives dialogue events for one dialogue.
type Subscriber interface {
	Subscribe(dialogueID string, buffer int) (string, <-chan Event, func())
}

// Hub is an in-memory Publisher and Subscriber. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[string]chan Event{}}
}

// Subscribe registers a listener. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(dialogueID string, buffer int) (string, <-chan Event, func()) {
	dialogueID = strings.TrimSpace(dialogueID)
	if buffer <= 0 {
		buffer = 64
	}
	id := uuid.NewString()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	if h.subs[dialogueID] == nil {
		h.subs[dialogueID] = map[string]chan Event{}
	}
	h.subs[dialogueID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[dialogueID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(h.subs, dialogueID)
				}
			}
			close(ch)
		})
	}
	return id, ch, cancel
}

func (h *Hub) Publish(event Event) {
	key := strings.TrimSpace(event.DialogueID)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[key] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns the number of listeners on a dialogue.
func (h *Hub) Subscribers(dialogueID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[strings.TrimSpace(dialogueID)])
}
