// Package pubsub fans scheduler events out to subscribers, typically SSE
// clients of the HTTP API.
package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the session.
const (
	// TopicEmits carries one model.BatchReport per processed change batch.
	TopicEmits = "emits"
	// TopicStatus carries Status updates.
	TopicStatus = "status"
)

// Event is one published message.
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`    // e.g. "batch", "ready", "error"
	Data    json.RawMessage `json:"data"`    // payload
	Version int             `json:"version"` // per-topic sequence number
}

// Subscription receives the events of one topic.
type Subscription interface {
	Topic() string

	// Events is closed when the subscription or its publisher closes.
	Events() <-chan Event

	Close() error
}

// Publisher manages subscriptions and publishing.
type Publisher interface {
	// Subscribe registers for a topic. Context cancellation closes the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends data, marshalled to JSON, to every subscriber of topic.
	Publish(topic string, eventType string, data any) error

	Close() error
}

// Status describes the session's state.
type Status struct {
	State          string `json:"state"` // loading, ready, error
	Message        string `json:"message"`
	Files          int    `json:"files"`
	ProjectVersion string `json:"projectVersion"`
}
