package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/patric-chuzhbe/placeshare/internal/models"
)

// RedisCache stores resolved locations as JSON strings in Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and checks the connection with PING.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("in internal/geocoder/rediscache.go/NewRedisCache(): error while `client.Ping()` calling: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (models.Location, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Location{}, false, nil
	}
	if err != nil {
		return models.Location{}, false, err
	}

	var location models.Location
	if err := json.Unmarshal(raw, &location); err != nil {
		return models.Location{}, false, err
	}

	return location, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, location models.Location, ttl time.Duration) error {
	raw, err := json.Marshal(location)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, raw, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
