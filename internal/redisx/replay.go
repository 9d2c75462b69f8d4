package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-bookstore-orders/internal/reconcile"
)

// ReplayStore keeps webhook responses so a redelivered notice gets the exact
// answer the first delivery got.
type ReplayStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewReplayStore(rdb redis.Cmdable) *ReplayStore {
	return &ReplayStore{rdb: rdb, ttl: TTLReplay}
}

func (s *ReplayStore) Get(ctx context.Context, code string) (reconcile.WebhookOutcome, bool, error) {
	var out reconcile.WebhookOutcome
	b, err := s.rdb.Get(ctx, fmt.Sprintf(KeyWebhookReplay, code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, false, nil
	}
	if err != nil {
		return out, false, fmt.Errorf("get webhook replay: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, false, fmt.Errorf("decode webhook replay: %w", err)
	}
	return out, true, nil
}

// Put stores only the first response for a code.
func (s *ReplayStore) Put(ctx context.Context, code string, out reconcile.WebhookOutcome) error {
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if err := s.rdb.SetNX(ctx, fmt.Sprintf(KeyWebhookReplay, code), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("put webhook replay: %w", err)
	}
	return nil
}
