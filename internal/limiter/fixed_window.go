package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FixedWindowLimiter 固定窗口限流器，每个 Window 最多 Rate 个请求
type FixedWindowLimiter struct {
	client RedisClient
	config Config
	script *redis.Script
	now    func() time.Time
}

// NewFixedWindowLimiter 创建固定窗口限流器
func NewFixedWindowLimiter(client RedisClient, config *Config) (*FixedWindowLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	cfg := *config
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "limiter:fw"
	}

	return &FixedWindowLimiter{
		client: client,
		config: cfg,
		script: redis.NewScript(fixedWindowScript),
		now:    time.Now,
	}, nil
}

// 窗口起点由调用方计算并编码进 key，脚本只负责计数
const fixedWindowScript = `
-- KEYS[1]: 当前窗口计数器key
-- ARGV[1]: 限制数量(rate)
-- ARGV[2]: 窗口剩余时间(毫秒)
-- ARGV[3]: 请求数量

local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])

local current = tonumber(redis.call('GET', KEYS[1]) or 0)
if current + requested > limit then
    return {0, math.max(0, limit - current), ttl}
end

local count = redis.call('INCRBY', KEYS[1], requested)
if count == requested then
    redis.call('PEXPIRE', KEYS[1], ttl)
end
return {1, limit - count, 0}
`

func (fw *FixedWindowLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", fw.config.KeyPrefix, key)
}

// Allow 检查是否允许请求通过
func (fw *FixedWindowLimiter) Allow(ctx context.Context, key string) (*LimitResult, error) {
	return fw.AllowN(ctx, key, 1)
}

// AllowN 检查是否允许N个请求通过
func (fw *FixedWindowLimiter) AllowN(ctx context.Context, key string, n int64) (*LimitResult, error) {
	windowMs := fw.config.Window.Milliseconds()
	nowMs := fw.now().UnixMilli()
	windowStart := nowMs / windowMs * windowMs
	ttl := windowStart + windowMs - nowMs

	val, err := fw.script.Run(ctx, fw.client,
		[]string{fmt.Sprintf("%s:%d", fw.key(key), windowStart)},
		fw.config.Rate,
		ttl,
		n,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute fixed window script: %w", err)
	}
	return parseScriptResult(val, fw.config.Rate)
}

// Reset 重置当前窗口
func (fw *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	windowMs := fw.config.Window.Milliseconds()
	windowStart := fw.now().UnixMilli() / windowMs * windowMs
	if err := fw.client.Del(ctx, fmt.Sprintf("%s:%d", fw.key(key), windowStart)).Err(); err != nil {
		return fmt.Errorf("failed to reset fixed window: %w", err)
	}
	return nil
}
