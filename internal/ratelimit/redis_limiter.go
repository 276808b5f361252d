package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "loyalty:rate_limit"

// Fixed window counter shared by every process pointing at the same Redis.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	RetryAfter time.Duration
}

type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = defaultKeyPrefix
	}

	return &RedisLimiter{
		client: client,
		prefix: trimmed,
	}
}

// Allow consumes one slot of scope/subject. A nil limiter or an empty key
// always allows.
func (l *RedisLimiter) Allow(
	ctx context.Context,
	scope, subject string,
	limit int,
	window time.Duration,
) (Decision, error) {
	decision := Decision{Allowed: true, Limit: limit}
	if l == nil || l.client == nil || limit <= 0 || window <= 0 {
		return decision, nil
	}

	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return decision, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", l.prefix, scope, subject)
	raw, err := fixedWindowScript.Run(ctx, l.client, []string{key}, windowMs).Result()
	if err != nil {
		return decision, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return decision, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return decision, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return decision, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	decision.Count = int(count)
	decision.Allowed = count <= int64(limit)
	decision.RetryAfter = time.Duration(math.Ceil(float64(ttlMs)/1000.0)) * time.Second
	if decision.RetryAfter < time.Second {
		decision.RetryAfter = time.Second
	}
	return decision, nil
}

// NewClient builds a client from a redis:// URL and verifies it answers.
func NewClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
