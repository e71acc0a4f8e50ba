package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript prunes, counts and appends in one step so concurrent requests
// from the same client cannot both take the last slot.
// ARGV: now, cutoff, window (ms), limit, member.
var admitScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
if redis.call('ZCARD', key) >= tonumber(ARGV[4]) then
  return 0
end
redis.call('ZADD', key, ARGV[1], ARGV[5])
redis.call('PEXPIRE', key, ARGV[3])
return 1
`)

// Redis is a sliding-window limiter shared by every process using the same
// Redis instance. Admissions are stored in one sorted set per client, scored
// by admission time in milliseconds.
type Redis struct {
	client    *redis.Client
	limit     int
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

func NewRedis(client *redis.Client, limit int, window time.Duration, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "rl:"
	}
	return &Redis{
		client:    client,
		limit:     limit,
		window:    window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (l *Redis) Admit(ctx context.Context, client string) (bool, error) {
	now := l.now().UnixMilli()
	res, err := admitScript.Run(ctx, l.client, []string{l.key(client)},
		now,
		now-l.window.Milliseconds(),
		l.window.Milliseconds(),
		l.limit,
		uuid.NewString(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}

// Count returns how many admissions of client are inside the window.
func (l *Redis) Count(ctx context.Context, client string) (int64, error) {
	from := fmt.Sprintf("(%d", l.now().UnixMilli()-l.window.Milliseconds())
	return l.client.ZCount(ctx, l.key(client), from, "+inf").Result()
}

func (l *Redis) key(client string) string {
	return l.keyPrefix + client
}

// Connect opens a Redis client and checks it with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
