// Package broadcast provides an in-process publish/subscribe hub used to
// push run progress and chat events to interested listeners.
package broadcast

import (
	"sync"

	"github.com/oss-labs/datalab/logging"
)

// Event is one published message on a topic.
type Event struct {
	Topic   string
	Type    string
	Payload any
}

type subscriber struct {
	id string
	ch chan Event
}

// Hub fans events out to per-topic subscribers. Publishing never blocks; a
// subscriber that cannot keep up loses events rather than stalling the
// publisher.
type Hub struct {
	mu     sync.RWMutex
	topics map[string][]subscriber
	logger logging.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Hub{
		topics: map[string][]subscriber{},
		logger: logger,
	}
}

// Subscribe registers a listener on a topic. The returned cancel function
// removes the subscription and closes the channel.
func (h *Hub) Subscribe(topic, id string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	sub := subscriber{id: id, ch: ch}

	h.mu.Lock()
	h.topics[topic] = append(h.topics[topic], sub)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.topics[topic]
		for i, s := range subs {
			if s.id == id && s.ch == ch {
				h.topics[topic] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its topic, dropping it
// for subscribers whose buffers are full.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	subs := h.topics[evt.Topic]
	h.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- evt:
		default:
			h.logger.Warn("dropping event for slow subscriber", "topic", evt.Topic, "subscriber", s.id, "type", evt.Type)
		}
	}
}
