package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"sync"
	"time"

	"github.com/asistente-auditoria/widget/domain"
)

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// fakeRenderer escapes its input and knows just enough Markdown for bold text.
type fakeRenderer struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRenderer) Render(markdown string) string {
	r.mu.Lock()
	r.calls = append(r.calls, markdown)
	r.mu.Unlock()
	return "<p>" + boldPattern.ReplaceAllString(html.EscapeString(markdown), "<strong>$1</strong>") + "</p>"
}

func (r *fakeRenderer) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}

// fakeHasher uses the content itself as the digest.
type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) string { return "digest:" + string(data) }

type statusError struct{ code int }

func (e statusError) Error() string       { return fmt.Sprintf("unexpected status %d", e.code) }
func (e statusError) HTTPStatusCode() int { return e.code }

// fakeBroker keeps one buffered channel per routing key.
type fakeBroker struct {
	mu     sync.Mutex
	topics map[string]chan domain.Message
	closed bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{topics: make(map[string]chan domain.Message)}
}

func (b *fakeBroker) channel(key string) chan domain.Message {
	ch, ok := b.topics[key]
	if !ok {
		ch = make(chan domain.Message, 256)
		b.topics[key] = ch
	}
	return ch
}

func (b *fakeBroker) Publish(_ context.Context, topic, routingKey string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("closed")
	}
	b.channel(topic+":"+routingKey) <- domain.Message{
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    message,
		Timestamp:  time.Now(),
	}
	return nil
}

func (b *fakeBroker) Subscribe(_ context.Context, topic, routingKey string) (<-chan domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel(topic + ":" + routingKey), nil
}

func (b *fakeBroker) Unsubscribe(topic, routingKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, topic+":"+routingKey)
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
