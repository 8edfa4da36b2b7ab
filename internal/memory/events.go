package memory

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

// Events records emitted envelopes per topic.
type Events struct {
	mu      sync.Mutex
	byTopic map[string][]payments.Envelope
}

func NewEvents() *Events {
	return &Events{byTopic: make(map[string][]payments.Envelope)}
}

func (e *Events) Emit(_ context.Context, topic string, ev payments.Envelope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byTopic[topic] = append(e.byTopic[topic], ev)
}

func (e *Events) Topic(topic string) []payments.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]payments.Envelope(nil), e.byTopic[topic]...)
}
