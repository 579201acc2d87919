package message_broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/asistente-auditoria/widget/domain"
	"github.com/asistente-auditoria/widget/utils/log"
)

const topicBuffer = 256

// ChannelMessageBroker implements MessageBroker using Go channels. Each
// topic and routing key pair gets one buffered channel.
type ChannelMessageBroker struct {
	topics map[string]chan domain.Message
	mu     sync.Mutex
	closed bool
}

// NewChannelMessageBroker creates a new channel-based message broker
func NewChannelMessageBroker() *ChannelMessageBroker {
	return &ChannelMessageBroker{
		topics: make(map[string]chan domain.Message),
	}
}

// makeKey creates a unique key for topic and routingKey
func makeKey(topic, routingKey string) string {
	return topic + ":" + routingKey
}

// channel returns the channel for key, creating it if needed. Callers hold mu.
func (b *ChannelMessageBroker) channel(key string) chan domain.Message {
	ch, ok := b.topics[key]
	if !ok {
		ch = make(chan domain.Message, topicBuffer)
		b.topics[key] = ch
	}
	return ch
}

// Publish sends a message to a specific topic and routing key. It never
// blocks: a full channel is reported as an error.
func (b *ChannelMessageBroker) Publish(ctx context.Context, topic string, routingKey string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("message broker is closed")
	}

	msg := domain.Message{
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    message,
		Timestamp:  time.Now(),
	}

	select {
	case b.channel(makeKey(topic, routingKey)) <- msg:
		log.WithCtx(ctx).Debug("Message published to topic",
			zap.String("topic", topic),
			zap.String("routingKey", routingKey),
			zap.Int("payload_size", len(message)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("topic channel is full: %s:%s", topic, routingKey)
	}
}

// Subscribe listens for messages on a specific topic and routing key
func (b *ChannelMessageBroker) Subscribe(ctx context.Context, topic string, routingKey string) (<-chan domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("message broker is closed")
	}

	ch := b.channel(makeKey(topic, routingKey))
	log.WithCtx(ctx).Debug("Subscribed to topic", zap.String("topic", topic), zap.String("routingKey", routingKey))
	return ch, nil
}

// Unsubscribe closes and forgets the channel of a finished session.
func (b *ChannelMessageBroker) Unsubscribe(topic string, routingKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := makeKey(topic, routingKey)
	if ch, ok := b.topics[key]; ok {
		close(ch)
		delete(b.topics, key)
	}
}

// Close closes the message broker and all topic channels
func (b *ChannelMessageBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	for key, ch := range b.topics {
		close(ch)
		log.WithCtx(context.Background()).Debug("Closed topic channel", zap.String("key", key))
	}
	b.topics = make(map[string]chan domain.Message)

	log.WithCtx(context.Background()).Info("Message broker closed")
	return nil
}

// GetTopicCount returns the number of active topics
func (b *ChannelMessageBroker) GetTopicCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
