package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRequestInProgress 相同幂等键的请求仍在处理中
var ErrRequestInProgress = errors.New("request with the same idempotency key is in progress")

// 幂等记录状态
const (
	IdempotencyPending = "pending"
	IdempotencyDone    = "done"
)

// IdempotencyRecord 幂等键对应的处理结果
type IdempotencyRecord struct {
	Status     string    `json:"status"`
	ResourceID string    `json:"resource_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IdempotencyStore 基于 SetNX 的幂等键存储
//
// 流程: Begin 抢占键；成功则执行业务并 Complete 记录结果，失败时 Release 释放键。
// 缓存不可用（NullCache）时 Begin 总是放行。
type IdempotencyStore struct {
	cache  Cache
	ttl    time.Duration
	prefix string
}

// NewIdempotencyStore 创建幂等存储
func NewIdempotencyStore(c Cache, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{cache: c, ttl: ttl, prefix: "idem"}
}

func (s *IdempotencyStore) key(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, key)
}

// Begin 抢占幂等键
//
// 返回 nil, nil 表示调用方应继续执行；返回已完成的记录表示应重放结果；
// 键处于 pending 状态时返回 ErrRequestInProgress。
func (s *IdempotencyStore) Begin(ctx context.Context, scope, key string) (*IdempotencyRecord, error) {
	pending := IdempotencyRecord{Status: IdempotencyPending, UpdatedAt: time.Now().UTC()}
	acquired, err := s.cache.SetNX(ctx, s.key(scope, key), pending, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire idempotency key: %w", err)
	}
	if acquired {
		return nil, nil
	}

	var existing IdempotencyRecord
	if err := s.cache.Get(ctx, s.key(scope, key), &existing); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if existing.Status == IdempotencyDone {
		return &existing, nil
	}
	return nil, ErrRequestInProgress
}

// Complete 记录处理结果，后续相同键的请求将重放 resourceID
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key, resourceID string) error {
	done := IdempotencyRecord{Status: IdempotencyDone, ResourceID: resourceID, UpdatedAt: time.Now().UTC()}
	if err := s.cache.Set(ctx, s.key(scope, key), done, s.ttl); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release 处理失败时释放键，允许客户端重试
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	return s.cache.Del(ctx, s.key(scope, key))
}
