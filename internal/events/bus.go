package events

import (
	"sync"
)

// Event names a stream on the bus.
type Event string

const (
	EventStep    Event = "step"
	EventTrade   Event = "trade"
	EventSession Event = "session"
)

// Message is what subscribers receive.
type Message struct {
	Event   Event `json:"event"`
	Payload any   `json:"payload"`
}

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan Message
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan Message)}
}

// Subscribe registers one channel for all the given events and returns it with
// an unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(buffer int, evs ...Event) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, buffer)
	for _, e := range evs {
		b.subs[e] = append(b.subs[e], ch)
	}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, e := range evs {
				subs := b.subs[e]
				for i, c := range subs {
					if c == ch {
						b.subs[e] = append(subs[:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}
	return ch, unsub
}

// Publish fans out without blocking; slow subscribers miss messages.
func (b *Bus) Publish(e Event, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	msg := Message{Event: e, Payload: payload}
	for _, ch := range b.subs[e] {
		select {
		case ch <- msg:
		default:
		}
	}
}
