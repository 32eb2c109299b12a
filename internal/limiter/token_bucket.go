package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBucketLimiter 令牌桶限流器，桶容量为 Burst，每个 Window 补充 Rate 个令牌
type TokenBucketLimiter struct {
	client RedisClient
	config Config
	script *redis.Script
	now    func() time.Time
}

// NewTokenBucketLimiter 创建令牌桶限流器
func NewTokenBucketLimiter(client RedisClient, config *Config) (*TokenBucketLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	cfg := *config
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Rate
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "limiter:tb"
	}

	return &TokenBucketLimiter{
		client: client,
		config: cfg,
		script: redis.NewScript(tokenBucketScript),
		now:    time.Now,
	}, nil
}

// 时间单位为毫秒；只把已折算成令牌的时间计入 last_refill，零头保留到下次
const tokenBucketScript = `
-- KEYS[1]: 令牌桶key
-- ARGV[1]: 容量(burst)
-- ARGV[2]: 补充速率(rate)
-- ARGV[3]: 时间窗口(毫秒)
-- ARGV[4]: 请求令牌数
-- ARGV[5]: 当前时间(毫秒)

local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

local elapsed = math.max(0, now - last_refill)
local added = math.floor(elapsed * rate / window)
if added > 0 then
    tokens = math.min(capacity, tokens + added)
    last_refill = last_refill + math.floor(added * window / rate)
end
if tokens >= capacity then
    last_refill = now
end

local allowed = 0
local retry_after = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = math.ceil((requested - tokens) * window / rate)
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', last_refill)
redis.call('PEXPIRE', key, window * 2)

return {allowed, tokens, retry_after}
`

func (tb *TokenBucketLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", tb.config.KeyPrefix, key)
}

// Allow 检查是否允许请求通过
func (tb *TokenBucketLimiter) Allow(ctx context.Context, key string) (*LimitResult, error) {
	return tb.AllowN(ctx, key, 1)
}

// AllowN 检查是否允许N个请求通过
func (tb *TokenBucketLimiter) AllowN(ctx context.Context, key string, n int64) (*LimitResult, error) {
	val, err := tb.script.Run(ctx, tb.client,
		[]string{tb.key(key)},
		tb.config.Burst,
		tb.config.Rate,
		tb.config.Window.Milliseconds(),
		n,
		tb.now().UnixMilli(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute token bucket script: %w", err)
	}
	return parseScriptResult(val, tb.config.Burst)
}

// Reset 重置令牌桶
func (tb *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	if err := tb.client.Del(ctx, tb.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset token bucket: %w", err)
	}
	return nil
}
