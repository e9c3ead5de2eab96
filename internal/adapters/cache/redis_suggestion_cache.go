package cache

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const suggestionPrefix = "pickup:suggestions:v1:"

// RedisSuggestionCache keeps raw suggester responses so repeated requests for the
// same board do not hit the LLM again.
type RedisSuggestionCache struct {
	redis  *redis.Client
	prefix string
}

func NewRedisSuggestionCache(client *redis.Client) *RedisSuggestionCache {
	return &RedisSuggestionCache{redis: client, prefix: suggestionPrefix}
}

// NewRedisClient accepts either a redis:// URL or a bare host:port address.
func NewRedisClient(addr string) (*redis.Client, error) {
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

func (c *RedisSuggestionCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.redis.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "get suggestion cache")
	}
	return v, true, nil
}

// Set stores value for ttl; a zero ttl keeps it until evicted.
func (c *RedisSuggestionCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.redis.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return errors.Wrap(err, "set suggestion cache")
	}
	return nil
}
