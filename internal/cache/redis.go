package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finbase/tradeledger/pkg/errors"
)

// Redis is the production Cache backed by a redis tier.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, version int, ttl time.Duration) error {
	if err := r.client.Set(ctx, versionedKey(key, version), value, ttl).Err(); err != nil {
		return errors.Wrap(errors.KindCache, err, "cache set")
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string, version int) ([]byte, error) {
	val, err := r.client.Get(ctx, versionedKey(key, version)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, errors.Wrap(errors.KindCache, err, "cache get")
	}
	return val, nil
}

func (r *Redis) Delete(ctx context.Context, key string, version int) error {
	if err := r.client.Del(ctx, versionedKey(key, version)).Err(); err != nil {
		return errors.Wrap(errors.KindCache, err, "cache delete")
	}
	return nil
}
