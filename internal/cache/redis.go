// Package cache provides the Redis client used for shared cache entries and
// cross-process invalidation of in-memory snapshots.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/degentalk/progression/internal/config"
	"github.com/degentalk/progression/pkg/logger"
)

// Invalidation topics.
const (
	TopicActions     = "actions"
	TopicLevels      = "levels"
	TopicLeaderboard = "leaderboard"
)

// Invalidation is the payload published on the invalidation channel.
type Invalidation struct {
	Topic  string    `json:"topic"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// RedisCache wraps a go-redis client.
type RedisCache struct {
	client   *redis.Client
	channel  string
	instance string
	log      *logger.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg *config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("Connected to Redis")

	return NewRedisCacheWithClient(client, cfg.InvalidationChannel, log), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, channel string, log *logger.Logger) *RedisCache {
	if channel == "" {
		channel = "progression:invalidate"
	}
	return &RedisCache{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		log:      log.Component("cache"),
	}
}

// Get returns the value stored at key, or "" if it does not exist.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value at key with an expiration; zero means no expiration.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := c.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Del deletes keys.
func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Incr increments the integer stored at key.
func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to incr %s: %w", key, err)
	}
	return n, nil
}

// Publish announces that the snapshot named by topic is stale.
func (c *RedisCache) Publish(ctx context.Context, topic string) error {
	raw, err := json.Marshal(Invalidation{Topic: topic, Origin: c.instance, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, c.channel, raw).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Subscribe delivers invalidations published by other instances to fn
// until ctx is cancelled. The subscription is confirmed before it returns.
func (c *RedisCache) Subscribe(ctx context.Context, fn func(topic string)) error {
	if fn == nil {
		return fmt.Errorf("invalidation callback required")
	}

	sub := c.client.Subscribe(ctx, c.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", c.channel, err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var msg Invalidation
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					c.log.Warn().Err(err).Msg("Bad invalidation payload")
					continue
				}
				if msg.Origin == c.instance {
					continue
				}
				c.log.Debug().Str("topic", msg.Topic).Str("origin", msg.Origin).Msg("Received invalidation")
				fn(msg.Topic)
			}
		}
	}()

	return nil
}

// Health pings Redis.
func (c *RedisCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
