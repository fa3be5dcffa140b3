// Package pubsub fans resolution and build progress out to live subscribers.
package pubsub

import (
	"context"
	"encoding/json"
	"time"
)

// Topics
const (
	TopicResolution = "resolution"
	TopicBuild      = "build"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "resolution", "build")
	Type    string          `json:"type"`    // Event type (e.g., "resolving", "resolved", "node_finished")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events. It is closed when the subscription ends.
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// ResolutionStatus is the payload of resolution events
type ResolutionStatus struct {
	State     string `json:"state"` // resolving, resolved, failed
	Root      string `json:"root"`
	Nodes     int    `json:"nodes,omitempty"`
	Collapsed int    `json:"collapsed,omitempty"`
	Message   string `json:"message,omitempty"`
}

// BuildProgress is the payload of build events
type BuildProgress struct {
	Node     string        `json:"node,omitempty"`
	Status   string        `json:"status"` // started, ok, failed, finished
	Duration time.Duration `json:"duration,omitempty"`
	Done     int           `json:"done"`
	Total    int           `json:"total"`
	Error    string        `json:"error,omitempty"`
}
