package realtime

import (
	"sort"
	"sync"
)

// hub fans one STOMP subscription per topic out to every local handler.
type hub struct {
	mu     sync.RWMutex
	next   uint64
	topics map[string]map[uint64]func([]byte)
}

func newHub() *hub {
	return &hub{topics: make(map[string]map[uint64]func([]byte))}
}

// register adds a handler and reports whether it is the first for topic.
func (h *hub) register(topic string, handler func([]byte)) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	handlers, ok := h.topics[topic]
	if !ok {
		handlers = make(map[uint64]func([]byte))
		h.topics[topic] = handlers
	}
	handlers[h.next] = handler
	return h.next, !ok
}

// unregister removes a handler and reports whether the topic is now empty.
func (h *hub) unregister(topic string, id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	handlers, ok := h.topics[topic]
	if !ok {
		return false
	}
	if _, ok := handlers[id]; !ok {
		return false
	}
	delete(handlers, id)
	if len(handlers) == 0 {
		delete(h.topics, topic)
		return true
	}
	return false
}

// broadcast calls the topic handlers outside the lock so a handler may
// subscribe or unsubscribe.
func (h *hub) broadcast(topic string, payload []byte) int {
	h.mu.RLock()
	handlers := make([]func([]byte), 0, len(h.topics[topic]))
	for _, handler := range h.topics[topic] {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(payload)
	}
	return len(handlers)
}

func (h *hub) active(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic]) > 0
}

func (h *hub) topicList() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	topics := make([]string, 0, len(h.topics))
	for topic := range h.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
