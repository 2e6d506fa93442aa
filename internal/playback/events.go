package playback

import (
	"sync"
	"time"
)

// EventType classifies a playback event.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventTimeUpdate   EventType = "time_update"
	EventCompleted    EventType = "completed"
	EventError        EventType = "error"
)

// Event is published on the Bus for every observable session change.
type Event struct {
	Type      EventType `json:"type"`
	StoryID   string    `json:"story_id"`
	UserID    string    `json:"user_id"`
	State     State     `json:"state"`
	PrevState State     `json:"prev_state,omitempty"`
	Position  float64   `json:"position"`
	Duration  float64   `json:"duration"`
	Rate      float64   `json:"rate"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus fans events out to subscribers. Publishing never blocks; a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
