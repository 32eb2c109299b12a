package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/cache"
	"github.com/MorseWayne/apparel_shop/internal/clock"
	"github.com/MorseWayne/apparel_shop/internal/database"
	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/metrics"
	"github.com/MorseWayne/apparel_shop/internal/mq"
	"github.com/MorseWayne/apparel_shop/internal/pricing"
	"github.com/MorseWayne/apparel_shop/internal/repo"
	"github.com/MorseWayne/apparel_shop/internal/tracing"
)

const (
	checkoutScope = "checkout"

	// 订单号唯一约束冲突时的最大尝试次数
	maxOrderNumberAttempts = 3

	defaultOrderListLimit = 50
	maxOrderListLimit     = 200
)

// OrderService 订单生命周期管理
type OrderService interface {
	// Create 结账。idempotencyKey 非空时，相同键的重复请求返回首次创建的订单，replayed 为 true
	Create(ctx context.Context, req *domain.CreateOrderRequest, idempotencyKey string) (order *domain.Order, replayed bool, err error)
	// Get 按订单 ID 或订单号查询
	Get(ctx context.Context, idOrNumber string) (*domain.Order, error)
	List(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, actor *string) (*domain.Order, error)
	Update(ctx context.Context, id string, req *domain.UpdateOrderRequest) (*domain.Order, error)
	// AddTracking 写入物流单号并迁移到 shipped；已发货订单只更新单号
	AddTracking(ctx context.Context, id, trackingNumber string, actor *string) (*domain.Order, error)
	// Delete 软删除，即取消订单；已取消的订单原样返回
	Delete(ctx context.Context, id string, actor *string) (*domain.Order, error)
	// Stats 订单统计，TotalRevenue 包含已取消和已退款订单
	Stats(ctx context.Context) (*domain.OrderStats, error)
	// DashboardRevenue 看板收入，不含已取消和已退款订单
	DashboardRevenue(ctx context.Context) (*domain.RevenueSummary, error)
}

type orderService struct {
	tx          database.TxManager
	orders      repo.OrderRepository
	stock       repo.StockRepository
	ledger      LedgerService
	numbers     OrderNumberAllocator
	settings    SettingsService
	idempotency *cache.IdempotencyStore
	publisher   mq.EventPublisher
	metrics     *metrics.Metrics
	clock       clock.Clock
	logger      *zap.Logger
}

// NewOrderService 创建订单服务
func NewOrderService(
	tx database.TxManager,
	orders repo.OrderRepository,
	stock repo.StockRepository,
	ledger LedgerService,
	numbers OrderNumberAllocator,
	settings SettingsService,
	idempotency *cache.IdempotencyStore,
	publisher mq.EventPublisher,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *zap.Logger,
) OrderService {
	if idempotency == nil {
		idempotency = cache.NewIdempotencyStore(cache.NewNullCache(), 0)
	}
	if publisher == nil {
		publisher = mq.NopPublisher{}
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orderService{
		tx:          tx,
		orders:      orders,
		stock:       stock,
		ledger:      ledger,
		numbers:     numbers,
		settings:    settings,
		idempotency: idempotency,
		publisher:   publisher,
		metrics:     m,
		clock:       clk,
		logger:      logger,
	}
}

func (s *orderService) Create(ctx context.Context, req *domain.CreateOrderRequest, idempotencyKey string) (order *domain.Order, replayed bool, err error) {
	ctx, span := tracing.Start(ctx, "orders.create", attribute.Int("items", len(req.Items)))
	defer func() { tracing.End(span, err) }()

	if idempotencyKey != "" {
		rec, berr := s.idempotency.Begin(ctx, checkoutScope, idempotencyKey)
		if berr != nil {
			return nil, false, berr
		}
		if rec != nil {
			order, err = s.Get(ctx, rec.ResourceID)
			return order, err == nil, err
		}
		defer func() {
			if err != nil {
				if rerr := s.idempotency.Release(ctx, checkoutScope, idempotencyKey); rerr != nil {
					s.logger.Warn("释放幂等键失败", zap.String("key", idempotencyKey), zap.Error(rerr))
				}
			}
		}()
	}

	order, err = s.buildOrder(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if err := s.persist(ctx, order); err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.String("order_number", order.OrderNumber))

	s.metrics.OrderCreated()
	s.logger.Info("订单已创建",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(2)))

	// 订单已落库，以下步骤失败只记录日志，由对账消费者补齐
	if err := s.ledger.ApplyOrderPurchase(ctx, order); err != nil {
		s.logger.Error("订单扣减库存失败", zap.String("order_id", order.ID), zap.Error(err))
	}
	if err := s.publisher.Publish(ctx, mq.EventOrderCreated, mq.OrderCreated{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
		Items:       order.ProductQuantities(),
	}); err != nil {
		s.logger.Warn("订单事件发布失败", zap.String("order_id", order.ID), zap.Error(err))
	}
	if idempotencyKey != "" {
		if err := s.idempotency.Complete(ctx, checkoutScope, idempotencyKey, order.ID); err != nil {
			s.logger.Warn("记录幂等结果失败", zap.String("key", idempotencyKey), zap.Error(err))
		}
	}
	return order, false, nil
}

// buildOrder 读取商品当前价格生成行快照并计算金额。
// 不存在的商品直接丢弃，其余商品任一库存不足时返回包含全部问题的 CartError
func (s *orderService) buildOrder(ctx context.Context, req *domain.CreateOrderRequest) (*domain.Order, error) {
	if req.Discount.IsNegative() {
		return nil, domain.ValidationError("discount must not be negative")
	}
	if !req.Discount.Equal(req.Discount.Round(2)) {
		return nil, domain.ValidationError("discount %s has more than two decimal places", req.Discount.String())
	}

	ids := make([]int64, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.stock.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var cart []domain.CartItem
	var items []domain.OrderItem
	for _, it := range req.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			s.logger.Info("结账商品不存在，已忽略", zap.Int64("product_id", it.ProductID))
			continue
		}
		cart = append(cart, domain.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
		items = append(items, domain.NewOrderItem(p, it.Size, it.Color, it.Quantity))
	}
	if len(items) == 0 {
		return nil, domain.ValidationError("order has no purchasable items")
	}

	validation, err := s.ledger.ValidateCart(ctx, cart)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, &domain.CartError{Issues: validation.Errors}
	}

	lines := make([]decimal.Decimal, len(items))
	for i, it := range items {
		lines[i] = it.LineTotal
	}
	subtotal := pricing.Subtotal(lines...)
	if req.Discount.GreaterThan(subtotal) {
		return nil, domain.ValidationError("discount %s exceeds subtotal %s", req.Discount.StringFixed(2), subtotal.StringFixed(2))
	}
	totals := pricing.Calculate(subtotal, req.Discount, s.settings.Rules(ctx))

	now := s.clock.Now()
	return &domain.Order{
		ID:              uuid.NewString(),
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Subtotal:        totals.Subtotal,
		ShippingCost:    totals.ShippingCost,
		Tax:             totals.Tax,
		Discount:        totals.Discount,
		Total:           totals.Total,
		Status:          domain.OrderStatusPending,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           items,
	}, nil
}

// persist 分配订单号并在事务中写入订单头与行，订单号冲突时重新分配
func (s *orderService) persist(ctx context.Context, order *domain.Order) error {
	var lastErr error
	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		number, err := s.numbers.Next(ctx)
		if err != nil && !errors.Is(err, domain.ErrAllocationDegraded) {
			return err
		}
		order.OrderNumber = number

		err = s.tx.WithTx(ctx, func(ctx context.Context) error {
			return s.orders.Create(ctx, order)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicate) {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}

		lastErr = err
		s.metrics.OrderNumberIssue("retry")
		s.logger.Warn("订单号冲突，重新分配",
			zap.String("order_number", number), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("%w: order number conflict after %d attempts: %v", domain.ErrPersistence, maxOrderNumberAttempts, lastErr)
}

func (s *orderService) Get(ctx context.Context, idOrNumber string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, idOrNumber)
	if err != nil {
		return nil, err
	}
	if order == nil {
		if order, err = s.orders.GetByNumber(ctx, idOrNumber); err != nil {
			return nil, err
		}
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, error) {
	if req.Status != nil && !req.Status.IsValid() {
		return nil, domain.ValidationError("unknown order status %q", *req.Status)
	}
	if req.Limit <= 0 {
		req.Limit = defaultOrderListLimit
	}
	if req.Limit > maxOrderListLimit {
		req.Limit = maxOrderListLimit
	}
	return s.orders.List(ctx, req)
}

func (s *orderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, actor *string) (*domain.Order, error) {
	if !status.IsValid() {
		return nil, domain.ValidationError("unknown order status %q", status)
	}
	return s.changeStatus(ctx, id, actor, func(o *domain.Order, now time.Time) (bool, error) {
		if !o.Status.CanTransitionTo(status) {
			return false, &domain.TransitionError{From: o.Status, To: status}
		}
		o.ApplyStatus(status, now)
		return true, nil
	})
}

func (s *orderService) AddTracking(ctx context.Context, id, trackingNumber string, actor *string) (*domain.Order, error) {
	if trackingNumber == "" {
		return nil, domain.ValidationError("tracking number is required")
	}
	return s.changeStatus(ctx, id, actor, func(o *domain.Order, now time.Time) (bool, error) {
		switch o.Status {
		case domain.OrderStatusProcessing:
			o.ApplyStatus(domain.OrderStatusShipped, now)
		case domain.OrderStatusShipped:
			o.UpdatedAt = now
		default:
			return false, &domain.TransitionError{From: o.Status, To: domain.OrderStatusShipped}
		}
		o.TrackingNumber = &trackingNumber
		return true, nil
	})
}

func (s *orderService) Delete(ctx context.Context, id string, actor *string) (*domain.Order, error) {
	return s.changeStatus(ctx, id, actor, func(o *domain.Order, now time.Time) (bool, error) {
		if o.Status == domain.OrderStatusCancelled {
			return false, nil
		}
		if !o.Status.CanTransitionTo(domain.OrderStatusCancelled) {
			return false, &domain.TransitionError{From: o.Status, To: domain.OrderStatusCancelled}
		}
		o.ApplyStatus(domain.OrderStatusCancelled, now)
		return true, nil
	})
}

// changeStatus 行锁读取订单后执行 apply，提交后处理状态变化的副作用
func (s *orderService) changeStatus(ctx context.Context, id string, actor *string, apply func(o *domain.Order, now time.Time) (bool, error)) (order *domain.Order, err error) {
	ctx, span := tracing.Start(ctx, "orders.change_status", attribute.String("order_id", id))
	defer func() { tracing.End(span, err) }()

	var from domain.OrderStatus
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if o == nil {
			return domain.ErrOrderNotFound
		}
		from = o.Status
		order = o

		changed, err := apply(o, s.clock.Now())
		if err != nil || !changed {
			return err
		}
		return s.orders.SaveStatus(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	if order.Status != from {
		s.afterTransition(ctx, order, from, actor)
	}
	return order, nil
}

func (s *orderService) afterTransition(ctx context.Context, order *domain.Order, from domain.OrderStatus, actor *string) {
	s.metrics.OrderTransition(string(from), string(order.Status))
	s.logger.Info("订单状态已变更",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)))

	if order.Status.ReleasesStock() {
		if err := s.ledger.ApplyOrderReturn(ctx, order, actor); err != nil {
			s.logger.Error("订单回补库存失败", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	if err := s.publisher.Publish(ctx, mq.EventOrderStatusChanged, mq.OrderStatusChanged{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          order.Status,
		Actor:       actor,
	}); err != nil {
		s.logger.Warn("订单状态事件发布失败", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *orderService) Update(ctx context.Context, id string, req *domain.UpdateOrderRequest) (*domain.Order, error) {
	if req.PaymentStatus != nil && !req.PaymentStatus.IsValid() {
		return nil, domain.ValidationError("unknown payment status %q", *req.PaymentStatus)
	}
	found, err := s.orders.Update(ctx, id, req, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrOrderNotFound
	}
	return s.orders.GetByID(ctx, id)
}

func (s *orderService) Stats(ctx context.Context) (*domain.OrderStats, error) {
	return s.orders.Stats(ctx)
}

func (s *orderService) DashboardRevenue(ctx context.Context) (*domain.RevenueSummary, error) {
	revenue, count, err := s.orders.Revenue(ctx, domain.RevenueExcludedStatuses)
	if err != nil {
		return nil, err
	}
	return &domain.RevenueSummary{
		Revenue:          revenue.Round(2),
		OrderCount:       count,
		ExcludedStatuses: domain.RevenueExcludedStatuses,
	}, nil
}
