// Package pubsub provides a generic publish/subscribe event system used to
// fan out pipeline outcomes and log lines to observers.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// LogEvent carries a formatted log line.
	LogEvent EventType = "log"
	// OutcomeEvent carries the result of one per-file pipeline run.
	OutcomeEvent EventType = "outcome"
	// FlushEvent signals that the fingerprint cache was persisted.
	FlushEvent EventType = "flush"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
