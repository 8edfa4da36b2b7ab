package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

// TxCache caches terminal transactions. PENDING ones are never cached
// since they are about to change.
type TxCache struct {
	rdb redis.Cmdable
}

func NewTxCache(rdb redis.Cmdable) *TxCache { return &TxCache{rdb: rdb} }

func (c *TxCache) Get(ctx context.Context, id string) (payments.Transaction, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyTransaction, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return payments.Transaction{}, false, nil
	}
	if err != nil {
		return payments.Transaction{}, false, err
	}
	var t payments.Transaction
	if err := json.Unmarshal(b, &t); err != nil {
		return payments.Transaction{}, false, err
	}
	return t, true, nil
}

func (c *TxCache) Put(ctx context.Context, t payments.Transaction) error {
	if !t.Status.Terminal() {
		return nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyTransaction, t.ID), b, TTLTransaction).Err()
}
