package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/ritzau/emit-scheduler/pkg/logging"
)

// ErrClosed is returned by a closed Hub.
var ErrClosed = errors.New("publisher is closed")

const subscriberBuffer = 100

// TopicConfig configures buffering for a topic.
type TopicConfig struct {
	BufferSize int  // events kept for replay (0 = none)
	ReplayAll  bool // replay every buffered event instead of only the last one
}

// Hub is an in-process Publisher whose subscribers are usually streamed to
// HTTP clients with Stream.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]map[*subscription]struct{}
	versions map[string]int
	buffers  map[string][]Event
	configs  map[string]TopicConfig
	closed   bool
	logger   *logging.Logger
}

// NewHub creates a hub with no topics configured.
func NewHub() *Hub {
	return &Hub{
		subs:     make(map[string]map[*subscription]struct{}),
		versions: make(map[string]int),
		buffers:  make(map[string][]Event),
		configs:  make(map[string]TopicConfig),
		logger:   logging.New("pubsub"),
	}
}

// ConfigureTopic sets buffering for a topic.
func (h *Hub) ConfigureTopic(topic string, config TopicConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.configs[topic] = config
}

// Subscribe implements Publisher. Buffered events are replayed first.
func (h *Hub) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	sub := &subscription{
		topic:  topic,
		events: make(chan Event, subscriberBuffer),
		hub:    h,
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*subscription]struct{})
	}
	h.subs[topic][sub] = struct{}{}

	replay := h.buffers[topic]
	if !h.configs[topic].ReplayAll && len(replay) > 0 {
		replay = replay[len(replay)-1:]
	}
	if len(replay) > subscriberBuffer {
		replay = replay[len(replay)-subscriberBuffer:]
	}
	for _, event := range replay {
		sub.events <- event
	}
	if len(replay) > 0 {
		h.logger.Debug("replayed events", "topic", topic, "count", len(replay))
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

// Publish implements Publisher. Slow subscribers lose events rather than
// block the publisher.
func (h *Hub) Publish(topic string, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	h.versions[topic]++
	event := Event{
		Topic:   topic,
		Type:    eventType,
		Data:    payload,
		Version: h.versions[topic],
	}

	if size := h.configs[topic].BufferSize; size > 0 {
		buffer := append(h.buffers[topic], event)
		if len(buffer) > size {
			buffer = buffer[len(buffer)-size:]
		}
		h.buffers[topic] = buffer
	}

	for sub := range h.subs[topic] {
		select {
		case sub.events <- event:
		default:
			h.logger.Warn("subscriber too slow, dropping event", "topic", topic, "version", event.Version)
		}
	}
	return nil
}

// Close implements Publisher and closes every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for _, subs := range h.subs {
		for sub := range subs {
			close(sub.events)
		}
	}
	h.subs = make(map[string]map[*subscription]struct{})
	return nil
}

// remove unregisters sub and closes its channel, unless Close already did.
func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[sub.topic]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, sub.topic)
	}
	close(sub.events)
}

type subscription struct {
	topic  string
	events chan Event
	hub    *Hub
	once   sync.Once
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Events() <-chan Event { return s.events }

func (s *subscription) Close() error {
	s.once.Do(func() { s.hub.remove(s) })
	return nil
}

// WriteSSE writes one event in SSE framing: "data: {json}\n\n".
func WriteSSE(w io.Writer, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// Stream subscribes to topic and writes its events to w until the request
// ends or the publisher closes.
func Stream(p Publisher, topic string, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sub, err := p.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	flush := func() {
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}

	// Initial comment establishes the stream for clients that wait for bytes.
	fmt.Fprint(w, ": connected\n\n")
	flush()

	for event := range sub.Events() {
		if err := WriteSSE(w, event); err != nil {
			logging.New("pubsub").Debug("SSE client gone", "topic", topic, "error", err)
			return
		}
		flush()
	}
}

var _ Publisher = (*Hub)(nil)
