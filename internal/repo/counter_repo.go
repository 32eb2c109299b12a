package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MorseWayne/apparel_shop/internal/database"
)

// ErrCounterMissing 计数器行不存在，需要先 Seed
var ErrCounterMissing = errors.New("counter row missing")

// CounterRepository 订单号计数器
type CounterRepository interface {
	// Next 原子递增并返回新值
	Next(ctx context.Context, name string) (int64, error)
	// Seed 计数器不存在时以 value 初始化，已存在则不变
	Seed(ctx context.Context, name string, value int64) error
	// MaxOrderSequence PREFIX-N 形式订单号中不超过 maxDigits 位的最大序号，没有时返回 0
	MaxOrderSequence(ctx context.Context, prefix string, maxDigits int) (int64, error)
}

type counterRepo struct {
	db *sql.DB
}

// NewCounterRepository 创建计数器仓储
func NewCounterRepository(db *sql.DB) CounterRepository {
	return &counterRepo{db: db}
}

// Next 依赖 LAST_INSERT_ID(expr)：驱动在同一个 OK 包里返回递增后的值
func (r *counterRepo) Next(ctx context.Context, name string) (int64, error) {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE order_counters SET value = LAST_INSERT_ID(value + 1) WHERE name = ?`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return 0, ErrCounterMissing
	}
	value, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read counter value: %w", err)
	}
	return value, nil
}

// Seed 初始化计数器
func (r *counterRepo) Seed(ctx context.Context, name string, value int64) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT IGNORE INTO order_counters (name, value) VALUES (?, ?)`, name, value)
	if err != nil {
		return fmt.Errorf("failed to seed counter: %w", err)
	}
	return nil
}

// MaxOrderSequence 只统计纯数字且位数不超过 maxDigits 的后缀，时间戳降级订单号位数更长，不参与比较
func (r *counterRepo) MaxOrderSequence(ctx context.Context, prefix string, maxDigits int) (int64, error) {
	head := prefix + "-"
	start := len([]rune(head)) + 1
	var seq int64
	err := database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(CAST(SUBSTRING(order_number, ?) AS UNSIGNED)), 0)
		 FROM orders
		 WHERE LEFT(order_number, ?) = ?
		   AND CHAR_LENGTH(order_number) BETWEEN ? AND ?
		   AND SUBSTRING(order_number, ?) REGEXP '^[0-9]+$'`,
		start, start-1, head, start, start-1+maxDigits, start).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get max order sequence: %w", err)
	}
	return seq, nil
}
