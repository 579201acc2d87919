package domain

import (
	"context"
	"time"
)

// CommandTopic carries command envelopes, routed by session id.
const CommandTopic = "conversation.commands"

// MessageBroker moves payloads between sessions and the front ends that
// render them.
type MessageBroker interface {
	// Publish sends a message to a topic with a routing key
	Publish(ctx context.Context, topic string, routingKey string, message []byte) error

	// Subscribe listens for messages on a topic and routing key
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan Message, error)

	// Unsubscribe drops the channel for a topic and routing key
	Unsubscribe(topic string, routingKey string)

	// Close closes the message broker
	Close() error
}

// Message represents a message received from the broker
type Message struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}
