package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCachePrefix = "suggest:candidates:"

// RedisCacheBackend shares merged candidate sets between service replicas.
type RedisCacheBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client, prefix: redisCachePrefix}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) (CandidateSet, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return CandidateSet{}, false, nil
		}
		return CandidateSet{}, false, err
	}
	var set CandidateSet
	if err := json.Unmarshal(data, &set); err != nil {
		return CandidateSet{}, false, err
	}
	return cloneCandidateSet(set), true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, set CandidateSet, ttl time.Duration) error {
	data, err := json.Marshal(cloneCandidateSet(set))
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
