package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// TokenStore keeps the gateway acceptance token shared by every API replica.
type TokenStore struct {
	rdb redis.Cmdable
	key string
}

func NewTokenStore(rdb redis.Cmdable, publicKey string) *TokenStore {
	return &TokenStore{rdb: rdb, key: fmt.Sprintf(KeyAcceptanceToken, publicKey)}
}

func (s *TokenStore) Get(ctx context.Context) (string, error) {
	v, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *TokenStore) Set(ctx context.Context, token string) error {
	return s.rdb.Set(ctx, s.key, token, TTLAcceptanceToken).Err()
}

func (s *TokenStore) Delete(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
