package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/clock"
	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/metrics"
	"github.com/MorseWayne/apparel_shop/internal/repo"
)

const (
	orderNumberCounter = "order_number"
	// 没有历史订单时计数器的初始值，首个订单号为 PREFIX-1001
	orderNumberSeed int64 = 1000
	// 计数器序号最多 11 位；时间戳降级订单号为 13 位毫秒数，不参与计数器初始化
	maxCounterDigits = 11
)

// OrderNumberAllocator 分配人类可读的订单号
type OrderNumberAllocator interface {
	// Next 返回新的订单号。计数器不可用时返回基于时间戳的订单号以及 ErrAllocationDegraded，
	// 此时订单号仍可使用
	Next(ctx context.Context) (string, error)
}

type orderNumberAllocator struct {
	counters repo.CounterRepository
	prefix   string
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *zap.Logger
}

// NewOrderNumberAllocator 创建订单号分配器
func NewOrderNumberAllocator(counters repo.CounterRepository, prefix string, m *metrics.Metrics, clk clock.Clock, logger *zap.Logger) OrderNumberAllocator {
	if prefix == "" {
		prefix = "ORD"
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orderNumberAllocator{
		counters: counters,
		prefix:   prefix,
		metrics:  m,
		clock:    clk,
		logger:   logger,
	}
}

func (a *orderNumberAllocator) Next(ctx context.Context) (string, error) {
	seq, err := a.next(ctx)
	if err != nil {
		number := a.fallback()
		a.metrics.OrderNumberIssue("degraded")
		a.logger.Error("订单号计数器不可用，使用时间戳订单号",
			zap.String("order_number", number), zap.Error(err))
		return number, fmt.Errorf("%w: %v", domain.ErrAllocationDegraded, err)
	}
	return FormatOrderNumber(a.prefix, seq), nil
}

func (a *orderNumberAllocator) next(ctx context.Context) (int64, error) {
	seq, err := a.counters.Next(ctx, orderNumberCounter)
	if !errors.Is(err, repo.ErrCounterMissing) {
		return seq, err
	}

	// 计数器行缺失：以已有订单中最大的计数器序号初始化
	seed := orderNumberSeed
	maxSeq, err := a.counters.MaxOrderSequence(ctx, a.prefix, maxCounterDigits)
	if err != nil {
		return 0, err
	}
	if maxSeq > seed {
		seed = maxSeq
	}
	if err := a.counters.Seed(ctx, orderNumberCounter, seed); err != nil {
		return 0, err
	}
	a.logger.Info("订单号计数器已初始化", zap.Int64("seed", seed))
	return a.counters.Next(ctx, orderNumberCounter)
}

// fallback 时间戳订单号，与计数器序号的位数不重叠
func (a *orderNumberAllocator) fallback() string {
	return fmt.Sprintf("%s-%d", a.prefix, a.clock.Now().UnixMilli())
}

// FormatOrderNumber 至少补齐 4 位，超过 4 位时原样增长
func FormatOrderNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%04d", prefix, seq)
}

// ParseOrderSequence 解析 PREFIX-NNNN 中的序号
func ParseOrderSequence(prefix, number string) (int64, bool) {
	rest, ok := strings.CutPrefix(number, prefix+"-")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
