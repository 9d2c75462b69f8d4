// Package statuscache keeps a Redis projection of each order's latest status,
// fed by order events and read by the status endpoint.
package statuscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
)

const maxWatchRetries = 5

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, ttl: redisx.TTLStatusCache}
}

func key(orderID int64) string { return fmt.Sprintf(redisx.KeyOrderStatus, orderID) }

func (s *Store) Get(ctx context.Context, orderID int64) (orders.Snapshot, bool, error) {
	var snap orders.Snapshot
	b, err := s.rdb.Get(ctx, key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, false, fmt.Errorf("decode status snapshot: %w", err)
	}
	return snap, true, nil
}

// Apply stores snap unless the cached snapshot is at least as recent. Events
// for one order can arrive late or twice; the cache never moves backwards.
func (s *Store) Apply(ctx context.Context, snap orders.Snapshot) (bool, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return false, err
	}
	k := key(snap.OrderID)

	for i := 0; i < maxWatchRetries; i++ {
		applied := false
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, k).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				var prev orders.Snapshot
				if json.Unmarshal(cur, &prev) == nil && !snap.UpdatedAt.After(prev.UpdatedAt) {
					return nil
				}
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, k, b, s.ttl)
				return nil
			})
			if err == nil {
				applied = true
			}
			return err
		}, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return applied, err
	}
	return false, fmt.Errorf("status snapshot %d: too much contention", snap.OrderID)
}
