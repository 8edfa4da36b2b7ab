package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

type Publisher interface {
	Publish(m kafka.Message) bool
}

// Emitter is the payments.EventSink backed by the broker. Events that cannot
// be queued are counted and dropped.
type Emitter struct {
	pub Publisher
	log *zap.Logger
}

func NewEmitter(pub Publisher, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{pub: pub, log: log}
}

func (e *Emitter) Emit(_ context.Context, topic string, ev payments.Envelope) {
	m, err := EncodeEnvelope(topic, ev)
	if err != nil {
		metrics.EventsDropped.WithLabelValues(topic).Inc()
		e.log.Error("event dropped", zap.String("topic", topic), zap.String("event_id", ev.EventID), zap.Error(err))
		return
	}
	if !e.pub.Publish(m) {
		metrics.EventsDropped.WithLabelValues(topic).Inc()
		e.log.Warn("event dropped, producer inbox full",
			zap.String("topic", topic),
			zap.String("event_type", ev.EventType),
			zap.String("reference", ev.CorrelationID))
	}
}
