// Package audit consumes payment inconsistency events and files them for
// manual review.
package audit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
)

type Service struct {
	Reviews     payments.ReviewStore
	Redis       redis.Cmdable
	ServiceName string
	Log         *zap.Logger
}

// HandleInconsistency is installed as the consumer handler of
// payments.TopicInconsistency.
func (s *Service) HandleInconsistency(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m)
	if err != nil {
		// poison message, retrying will not help
		s.logger().Error("undecodable event skipped", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != payments.EventInconsistency {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	first, err := redisx.MarkOnce(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	p, err := kafkax.UnwrapPayload[payments.InconsistencyPayload](env.Payload)
	if err != nil {
		s.logger().Error("inconsistency payload skipped", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	inserted, err := s.Reviews.SaveReview(ctx, payments.Review{
		EventID:      env.EventID,
		Reference:    p.Reference,
		Reason:       p.Reason,
		LocalStatus:  p.LocalStatus,
		RemoteStatus: p.RemoteStatus,
		Payload:      env.Payload,
		CreatedAt:    env.OccurredAt,
	})
	if err != nil {
		if uerr := redisx.Unmark(ctx, s.Redis, dkey); uerr != nil {
			s.logger().Warn("dedup key not released", zap.String("key", dkey), zap.Error(uerr))
		}
		return fmt.Errorf("save review %s: %w", env.EventID, err)
	}
	if inserted {
		s.logger().Warn("payment needs review",
			zap.String("reference", p.Reference),
			zap.String("reason", p.Reason),
			zap.String("local_status", string(p.LocalStatus)),
			zap.String("remote_status", p.RemoteStatus))
	}
	return nil
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
