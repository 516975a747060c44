package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event is the wire envelope pushed to every subscriber.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

type subscriber struct {
	conn *websocket.Conn
	// WriteJSON is not safe for concurrent use; every write to this conn
	// holds the subscriber lock.
	mu sync.Mutex
}

func (s *subscriber) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Broadcaster fans playback outcomes out to WebSocket subscribers. Slow or
// broken subscribers are dropped on the first failed write.
type Broadcaster struct {
	mu           sync.Mutex
	subscribers  map[*subscriber]struct{}
	pingInterval time.Duration
	closed       bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers:  make(map[*subscriber]struct{}),
		pingInterval: 30 * time.Second,
	}
}

// Subscribe registers a WebSocket connection and services it until it drops.
func (b *Broadcaster) Subscribe(conn *websocket.Conn) {
	sub := &subscriber{conn: conn}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.subscribers[sub] = struct{}{}
	count := len(b.subscribers)
	b.mu.Unlock()

	log.Printf("events: subscriber connected, total=%d", count)

	go b.pingLoop(sub)
	go b.readLoop(sub)
}

// Publish sends an event to every subscriber.
func (b *Broadcaster) Publish(eventType string, payload any) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      payload,
	}

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.writeJSON(event); err != nil {
			log.Printf("events: dropping subscriber after write failure: %v", err)
			b.remove(sub)
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close disconnects every subscriber and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subscribers {
		sub.conn.Close()
	}
	b.subscribers = make(map[*subscriber]struct{})
}

func (b *Broadcaster) pingLoop(sub *subscriber) {
	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !b.has(sub) {
			return
		}
		if err := sub.writeJSON(map[string]string{"type": "ping"}); err != nil {
			b.remove(sub)
			return
		}
	}
}

// readLoop drains inbound frames so control messages get processed and
// disconnects are noticed.
func (b *Broadcaster) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			b.remove(sub)
			log.Printf("events: subscriber disconnected")
			return
		}
	}
}

func (b *Broadcaster) has(sub *subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subscribers[sub]
	return ok
}

func (b *Broadcaster) remove(sub *subscriber) {
	b.mu.Lock()
	_, ok := b.subscribers[sub]
	if ok {
		delete(b.subscribers, sub)
	}
	b.mu.Unlock()
	if ok {
		sub.conn.Close()
	}
}
