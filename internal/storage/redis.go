package storage

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
	pkgredis "github.com/angelmondragon/vaccine-orders/pkg/redis"
)

var _ cart.Storage = (*Redis)(nil)

type redisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	KVKey(key string) string
}

// Redis stores entries under namespaced keys without expiry.
type Redis struct {
	client redisKV
}

func NewRedis(client redisKV) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.client.KVKey(key))
	if errors.Is(err, pkgredis.ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.client.KVKey(key), value, 0)
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.client.KVKey(key))
}
