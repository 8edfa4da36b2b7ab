package gateway

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenCache hands out the merchant acceptance token required on every charge.
type TokenCache interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops the cached token; the next Token call fetches a new one.
	Invalidate(ctx context.Context) error
}

// TokenStore shares a token between processes. Get returns "" on a miss.
type TokenStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

type FetchFunc func(ctx context.Context) (string, error)

var errEmptyToken = errors.New("empty acceptance token")

// AcceptanceTokens is a lazily filled TokenCache. Concurrent misses share one
// fetch.
type AcceptanceTokens struct {
	fetch FetchFunc
	store TokenStore // optional
	log   *zap.Logger

	group singleflight.Group
	mu    sync.RWMutex
	token string
}

func NewAcceptanceTokens(fetch FetchFunc, store TokenStore, log *zap.Logger) *AcceptanceTokens {
	if log == nil {
		log = zap.NewNop()
	}
	return &AcceptanceTokens{fetch: fetch, store: store, log: log}
}

func (a *AcceptanceTokens) Token(ctx context.Context) (string, error) {
	a.mu.RLock()
	t := a.token
	a.mu.RUnlock()
	if t != "" {
		return t, nil
	}

	v, err, _ := a.group.Do("acceptance_token", func() (any, error) {
		if a.store != nil {
			t, err := a.store.Get(ctx)
			if err != nil {
				a.log.Warn("token store get", zap.Error(err))
			} else if t != "" {
				a.set(t)
				return t, nil
			}
		}

		t, err := a.fetch(ctx)
		if err != nil {
			return "", err
		}
		if t == "" {
			return "", errEmptyToken
		}
		a.set(t)
		if a.store != nil {
			if err := a.store.Set(ctx, t); err != nil {
				a.log.Warn("token store set", zap.Error(err))
			}
		}
		a.log.Info("acceptance token refreshed")
		return t, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (a *AcceptanceTokens) Invalidate(ctx context.Context) error {
	a.set("")
	if a.store != nil {
		return a.store.Delete(ctx)
	}
	return nil
}

func (a *AcceptanceTokens) set(t string) {
	a.mu.Lock()
	a.token = t
	a.mu.Unlock()
}
