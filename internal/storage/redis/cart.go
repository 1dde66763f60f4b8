// Package redis stores carts in Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/food-checkout/internal/domain/cart"
)

const (
	AccountTTL = 7 * 24 * time.Hour
	SessionTTL = 24 * time.Hour
)

var _ cart.Store = (*CartStore)(nil)

// CartStore keeps each cart as a JSON value under cart:<kind>:<id>. Saves are
// compare-and-set on the stored version using WATCH/MULTI.
type CartStore struct {
	client redis.UniversalClient
}

// NewCartStore creates a CartStore.
func NewCartStore(client redis.UniversalClient) *CartStore {
	return &CartStore{client: client}
}

func (s *CartStore) Get(ctx context.Context, key cart.Key) (*cart.Cart, error) {
	return get(ctx, s.client, key)
}

func (s *CartStore) Save(ctx context.Context, c *cart.Cart, expected int64) error {
	k := cacheKey(c.Key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := get(ctx, tx, c.Key)
		if err != nil {
			return err
		}
		if current.Version != expected {
			return cart.ErrVersionConflict
		}

		next := *c
		next.Version = expected + 1
		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal cart failed: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, ttl(c.Key))
			return nil
		})
		return err
	}, k)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return cart.ErrVersionConflict
	case err != nil:
		return err
	}
	c.Version = expected + 1
	return nil
}

func (s *CartStore) Delete(ctx context.Context, key cart.Key) error {
	if err := s.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func get(ctx context.Context, c redis.Cmdable, key cart.Key) (*cart.Cart, error) {
	data, err := c.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &cart.Cart{Key: key}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	out := &cart.Cart{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	out.Key = key
	return out, nil
}

func cacheKey(key cart.Key) string {
	return "cart:" + key.String()
}

func ttl(key cart.Key) time.Duration {
	if key.Kind == cart.OwnerAccount {
		return AccountTTL
	}
	return SessionTTL
}
