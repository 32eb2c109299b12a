// Package limiter 提供基于 Redis 的分布式限流器
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimitResult 限流结果
type LimitResult struct {
	Allowed    bool          `json:"allowed"`     // 是否允许通过
	Limit      int64         `json:"limit"`       // 限流阈值
	Remaining  int64         `json:"remaining"`   // 剩余配额
	RetryAfter time.Duration `json:"retry_after"` // 建议重试时间
}

// Limiter 限流器接口
type Limiter interface {
	// Allow 检查是否允许请求通过
	Allow(ctx context.Context, key string) (*LimitResult, error)

	// AllowN 检查是否允许N个请求通过
	AllowN(ctx context.Context, key string, n int64) (*LimitResult, error)

	// Reset 重置限流状态
	Reset(ctx context.Context, key string) error
}

// RedisClient 限流器依赖的 Redis 能力，*redis.Client 与 *redis.ClusterClient 均满足
type RedisClient interface {
	redis.Scripter
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Config 限流配置
type Config struct {
	Rate      int64         `json:"rate"`       // 每个时间窗口允许的请求数
	Window    time.Duration `json:"window"`     // 时间窗口
	Burst     int64         `json:"burst"`      // 突发容量（令牌桶）
	KeyPrefix string        `json:"key_prefix"` // Key前缀
}

func (c *Config) validate() error {
	if c.Rate <= 0 {
		return fmt.Errorf("limiter rate must be positive, got %d", c.Rate)
	}
	if c.Window < time.Millisecond {
		return fmt.Errorf("limiter window must be at least 1ms, got %s", c.Window)
	}
	return nil
}

// LimiterType 限流器类型
type LimiterType string

const (
	TokenBucket LimiterType = "token_bucket" // 令牌桶
	FixedWindow LimiterType = "fixed_window" // 固定窗口
)

// Factory 限流器工厂
type Factory struct {
	client RedisClient
}

// NewFactory 创建限流器工厂
func NewFactory(client RedisClient) *Factory {
	return &Factory{client: client}
}

// Create 创建指定类型的限流器
func (f *Factory) Create(limiterType LimiterType, config *Config) (Limiter, error) {
	switch limiterType {
	case FixedWindow:
		return NewFixedWindowLimiter(f.client, config)
	default:
		return NewTokenBucketLimiter(f.client, config)
	}
}

// toInt64 解析 Lua 脚本返回的整数
func toInt64(v interface{}) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script value %T", v)
	}
	return n, nil
}

// parseScriptResult 解析 {allowed, remaining, retry_after_ms} 形式的脚本返回值
func parseScriptResult(val interface{}, limit int64) (*LimitResult, error) {
	values, ok := val.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected script result format")
	}
	nums := make([]int64, 3)
	for i := range nums {
		n, err := toInt64(values[i])
		if err != nil {
			return nil, err
		}
		nums[i] = n
	}
	return &LimitResult{
		Allowed:    nums[0] == 1,
		Limit:      limit,
		Remaining:  nums[1],
		RetryAfter: time.Duration(nums[2]) * time.Millisecond,
	}, nil
}
