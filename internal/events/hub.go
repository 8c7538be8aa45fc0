// Package events is the in-process real-time broadcaster. Each webhook is a
// topic; subscribers receive events published to the topics they joined, in
// publish order, and nothing published before they joined.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/hooky/internal/metrics"
)

// TypeNewRequest is published after a request has been captured.
const TypeNewRequest = "new-request"

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

type Event struct {
	ID    int64           `json:"id"`
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	At    time.Time       `json:"at"`
	Data  json.RawMessage `json:"data"`
}

// Subscriber is a handle owned by one viewer connection.
type Subscriber struct {
	ch chan Event

	// guarded by Hub.mu
	topics map[string]struct{}
	closed bool
}

// Events is closed when the subscriber or the hub is closed.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Hub fans published events out to topic subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	nextID atomic.Int64

	mu     sync.Mutex
	topics map[string]map[*Subscriber]struct{}
	subs   map[*Subscriber]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		subs:   make(map[*Subscriber]struct{}),
	}
}

// NewSubscriber registers a handle with no topics.
func (h *Hub) NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscriber{
		ch:     make(chan Event, buffer),
		topics: make(map[string]struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	metrics.Subscribers.Inc()
	return s
}

// Subscribe adds s to topic. Subscribing twice is a no-op.
func (h *Hub) Subscribe(topic string, s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || s.closed {
		return
	}
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.topics[topic] = set
	}
	set[s] = struct{}{}
	s.topics[topic] = struct{}{}
}

// Unsubscribe removes s from topic.
func (h *Hub) Unsubscribe(topic string, s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(topic, s)
}

func (h *Hub) unsubscribeLocked(topic string, s *Subscriber) {
	delete(s.topics, topic)
	set, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.topics, topic)
	}
}

// Release drops every subscription held by s and closes its channel. Call it
// when the viewer disconnects.
func (h *Hub) Release(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	for topic := range s.topics {
		h.unsubscribeLocked(topic, s)
	}
	delete(h.subs, s)
	s.closed = true
	close(s.ch)
	metrics.Subscribers.Dec()
}

// Publish delivers data, JSON encoded, to every current subscriber of topic
// and returns how many received it.
func (h *Hub) Publish(topic, eventType string, data any) (int, error) {
	payload := json.RawMessage("{}")
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return 0, fmt.Errorf("encode %s event: %w", eventType, err)
		}
		payload = b
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, nil
	}

	ev := Event{
		ID:    h.nextID.Add(1),
		Topic: topic,
		Type:  eventType,
		At:    time.Now().UTC(),
		Data:  payload,
	}

	delivered := 0
	for s := range h.topics[topic] {
		// Don't let slow clients block producers.
		select {
		case s.ch <- ev:
			delivered++
		default:
			metrics.BroadcastDropped.Inc()
		}
	}
	return delivered, nil
}

// SubscriberCount returns the number of subscribers on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Close releases every subscriber. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.closed = true
		close(s.ch)
		metrics.Subscribers.Dec()
	}
	h.subs = map[*Subscriber]struct{}{}
	h.topics = map[string]map[*Subscriber]struct{}{}
}
