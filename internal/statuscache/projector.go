package statuscache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
)

// Projector is a kafka.Handler that folds order events into the Store.
type Projector struct {
	Store   *Store
	Redis   *redis.Client
	Service string
	Log     *zap.Logger
}

func (p *Projector) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// Poison message: committing it is better than blocking the partition.
		p.Log.Error("undecodable order event", zap.String("topic", m.Topic), zap.Error(err))
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, p.Service, env.EventID)
	if seen, _ := redisx.Exists(ctx, p.Redis, dkey); seen {
		return nil
	}

	snap, err := kafkax.UnwrapPayload[orders.Snapshot](env.Payload)
	if err != nil || snap.OrderID == 0 {
		p.Log.Error("order event without snapshot",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
		)
		return nil
	}

	applied, err := p.Store.Apply(ctx, snap)
	if err != nil {
		return fmt.Errorf("apply %s for order %d: %w", env.EventType, snap.OrderID, err)
	}
	_ = p.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p.Log.Debug("order event projected",
		zap.String("event_type", env.EventType),
		zap.Int64("order_id", snap.OrderID),
		zap.Stringer("status", snap.Status),
		zap.Bool("applied", applied),
	)
	return nil
}
