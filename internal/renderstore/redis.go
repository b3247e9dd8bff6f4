package renderstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "uibridge:renderdata:"

// Redis stores render data in a shared Redis instance so several host
// replicas can serve the same surface.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a Redis-backed store. A zero ttl keeps entries until
// they are deleted.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Put(ctx context.Context, surfaceID string, renderData any) error {
	b, err := json.Marshal(renderData)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+surfaceID, b, r.ttl).Err()
}

func (r *Redis) Get(ctx context.Context, surfaceID string) (any, bool, error) {
	b, err := r.client.Get(ctx, keyPrefix+surfaceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *Redis) Delete(ctx context.Context, surfaceID string) error {
	return r.client.Del(ctx, keyPrefix+surfaceID).Err()
}
