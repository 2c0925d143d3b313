package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const counterKeyPrefix = "monwatch:counter:"

// RedisCounters keeps consecutive-confirmation counters in Redis so a
// restarted daemon resumes confirmation streaks instead of re-arming
// them. Entries expire after ttl; a counter untouched that long is a
// dead streak anyway.
type RedisCounters struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCounters(client redis.Cmdable, ttl time.Duration) *RedisCounters {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCounters{client: client, ttl: ttl}
}

// DialRedis connects and pings within the context deadline.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisCounters) GetCounter(ctx context.Context, key string) (int, error) {
	val, err := r.client.Get(ctx, counterKeyPrefix+key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter %s: %w", key, err)
	}
	return count, nil
}

func (r *RedisCounters) SetCounter(ctx context.Context, key string, value int, _ time.Time) error {
	if err := r.client.Set(ctx, counterKeyPrefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write counter %s: %w", key, err)
	}
	return nil
}
