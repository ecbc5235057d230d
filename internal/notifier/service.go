package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "school-store/internal/kafka"
	"school-store/internal/orders"
	"school-store/internal/redisx"
)

// Service consumes order events and emits customer notifications. Actual
// SMS/email delivery is out of scope; a structured log line stands in for
// the provider call.
type Service struct {
	Redis *redis.Client
	Log   *slog.Logger
}

// Handle is installed as the consumer handler for both order topics.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup by event_id so redeliveries do not re-notify
	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}

	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.Log.Info("notification sent",
			"kind", "order_placed",
			"order_id", p.OrderID,
			"user_id", p.UserID,
			"total", p.Total,
			"lines", len(p.Lines),
		)
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.Log.Info("notification sent",
			"kind", "order_status",
			"order_id", p.OrderID,
			"user_id", p.UserID,
			"status", p.Status,
		)
	default:
		return nil // ignore unknown event types
	}

	return s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
}
