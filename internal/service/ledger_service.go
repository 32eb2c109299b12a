package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/clock"
	"github.com/MorseWayne/apparel_shop/internal/database"
	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/metrics"
	"github.com/MorseWayne/apparel_shop/internal/mq"
	"github.com/MorseWayne/apparel_shop/internal/repo"
	"github.com/MorseWayne/apparel_shop/internal/tracing"
)

// 流水查询的默认与最大条数
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// LedgerService 库存台账：每次数量变化都在同一事务内写入不可变流水
type LedgerService interface {
	GetStatus(ctx context.Context) (*domain.StockStatus, error)
	SetQuantity(ctx context.Context, productID int64, quantity int, note string, actor *string) (*domain.StockChange, error)
	AdjustQuantity(ctx context.Context, productID int64, delta int, note string, actor *string) (*domain.StockChange, error)
	Restock(ctx context.Context, productID int64, quantity int, note string, actor *string) (*domain.StockChange, error)
	CheckAvailability(ctx context.Context, productID int64, requested int) (*domain.Availability, error)
	ValidateCart(ctx context.Context, items []domain.CartItem) (*domain.CartValidation, error)
	History(ctx context.Context, productID int64, limit int) ([]*domain.StockHistoryEntry, error)

	// ApplyOrderPurchase 按订单扣减库存，每个商品至多扣减一次
	ApplyOrderPurchase(ctx context.Context, order *domain.Order) error
	// ApplyOrderReturn 回补订单实际扣减的数量，每个商品至多回补一次
	ApplyOrderReturn(ctx context.Context, order *domain.Order, actor *string) error
	// ReconcileOrder 按订单当前状态补齐缺失的扣减/回补
	ReconcileOrder(ctx context.Context, orderID string) error
}

type ledgerService struct {
	tx           database.TxManager
	stock        repo.StockRepository
	orders       repo.OrderRepository
	alerts       AlertService
	productCache repo.ProductCache
	publisher    mq.EventPublisher
	metrics      *metrics.Metrics
	clock        clock.Clock
	logger       *zap.Logger
}

// NewLedgerService 创建库存台账服务
func NewLedgerService(
	tx database.TxManager,
	stock repo.StockRepository,
	orders repo.OrderRepository,
	alerts AlertService,
	productCache repo.ProductCache,
	publisher mq.EventPublisher,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *zap.Logger,
) LedgerService {
	if productCache == nil {
		productCache = repo.NopProductCache{}
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
	return &ledgerService{
		tx:           tx,
		stock:        stock,
		orders:       orders,
		alerts:       alerts,
		productCache: productCache,
		publisher:    publisher,
		metrics:      m,
		clock:        clk,
		logger:       logger,
	}
}

// GetStatus 汇总全部商品的库存等级与货值，不跟踪库存的商品计为有货
func (s *ledgerService) GetStatus(ctx context.Context) (*domain.StockStatus, error) {
	products, err := s.stock.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	status := &domain.StockStatus{TotalInventoryValue: decimal.Zero}
	for _, p := range products {
		status.TotalProducts++
		switch p.StockLevel() {
		case domain.StockLevelOutOfStock:
			status.OutOfStock++
		case domain.StockLevelLowStock:
			status.LowStock++
		default:
			status.InStock++
		}
		status.TotalInventoryValue = status.TotalInventoryValue.Add(p.InventoryValue())
	}
	status.TotalInventoryValue = status.TotalInventoryValue.Round(2)

	if status.OpenAlertCount, err = s.alerts.CountOpen(ctx); err != nil {
		return nil, err
	}
	return status, nil
}

func (s *ledgerService) SetQuantity(ctx context.Context, productID int64, quantity int, note string, actor *string) (*domain.StockChange, error) {
	if quantity < 0 {
		return nil, domain.ValidationError("quantity must not be negative")
	}
	return s.apply(ctx, domain.StockMutation{
		ProductID:  productID,
		Mode:       domain.MutationSet,
		Value:      quantity,
		ChangeType: domain.ChangeTypeAdjustment,
		Note:       note,
		Actor:      actor,
	})
}

func (s *ledgerService) AdjustQuantity(ctx context.Context, productID int64, delta int, note string, actor *string) (*domain.StockChange, error) {
	if delta == 0 {
		return nil, domain.ValidationError("delta must not be zero")
	}
	return s.apply(ctx, domain.StockMutation{
		ProductID:  productID,
		Mode:       domain.MutationDelta,
		Value:      delta,
		ChangeType: domain.ChangeTypeAdjustment,
		Note:       note,
		Actor:      actor,
	})
}

func (s *ledgerService) Restock(ctx context.Context, productID int64, quantity int, note string, actor *string) (*domain.StockChange, error) {
	if quantity <= 0 {
		return nil, domain.ValidationError("restock quantity must be positive")
	}
	change, clamped, err := s.mutate(ctx, domain.StockMutation{
		ProductID:  productID,
		Mode:       domain.MutationDelta,
		Value:      quantity,
		ChangeType: domain.ChangeTypeRestock,
		Note:       note,
		Actor:      actor,
	})
	if err != nil {
		return nil, err
	}

	// 补货只解决缺货告警，低库存告警交给阈值评估
	if err := s.alerts.ResolveOpen(ctx, productID, domain.AlertTypeOutOfStock, note, actor); err != nil {
		s.logger.Warn("补货后解决缺货告警失败", zap.Int64("product_id", productID), zap.Error(err))
	}
	s.afterCommit(ctx, change, clamped)
	return change, nil
}

// apply 执行变更并触发提交后的副作用
func (s *ledgerService) apply(ctx context.Context, m domain.StockMutation) (*domain.StockChange, error) {
	change, clamped, err := s.mutate(ctx, m)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, change, clamped)
	return change, nil
}

// mutate 在事务内锁定商品行、计算新数量并写入流水。
// 流水先于数量写入，订单流水的唯一约束冲突会使整个事务回滚。
func (s *ledgerService) mutate(ctx context.Context, m domain.StockMutation) (change *domain.StockChange, clamped bool, err error) {
	ctx, span := tracing.Start(ctx, "ledger.mutate",
		attribute.Int64("product_id", m.ProductID),
		attribute.String("change_type", string(m.ChangeType)),
		attribute.Int("value", m.Value))
	defer func() { tracing.End(span, err) }()

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		product, err := s.stock.LockProduct(ctx, m.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return domain.ErrProductNotFound
		}

		newQuantity, applied := m.Apply(product.Quantity)
		clamped = m.Clamped(product.Quantity)
		note := m.Note
		if clamped {
			note = domain.ClampNote(m.Note, m.Value)
		}

		entry := &domain.StockHistoryEntry{
			ID:               uuid.NewString(),
			ProductID:        product.ID,
			PreviousQuantity: product.Quantity,
			NewQuantity:      newQuantity,
			Delta:            applied,
			ChangeType:       m.ChangeType,
			RelatedOrderID:   m.RelatedOrderID,
			Note:             note,
			Actor:            m.Actor,
			CreatedAt:        s.clock.Now(),
		}
		if err := s.stock.InsertHistory(ctx, entry); err != nil {
			return err
		}
		if err := s.stock.UpdateQuantity(ctx, product.ID, newQuantity); err != nil {
			return err
		}

		product.Quantity = newQuantity
		change = &domain.StockChange{Product: product, Entry: entry}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return change, clamped, nil
}

// afterCommit 指标、缓存失效、告警评估与事件发布，失败只记录日志
func (s *ledgerService) afterCommit(ctx context.Context, change *domain.StockChange, clamped bool) {
	entry := change.Entry
	s.metrics.StockMutation(string(entry.ChangeType), clamped)
	s.productCache.Invalidate(ctx, entry.ProductID)

	logger := s.logger.With(
		zap.Int64("product_id", entry.ProductID),
		zap.String("change_type", string(entry.ChangeType)),
		zap.Int("delta", entry.Delta))
	if clamped {
		logger.Warn("库存变更在零处截断", zap.String("note", entry.Note))
	} else {
		logger.Debug("库存已变更", zap.Int("new_quantity", entry.NewQuantity))
	}

	if err := s.alerts.Evaluate(ctx, change.Product, entry.NewQuantity); err != nil {
		logger.Warn("库存告警评估失败", zap.Error(err))
	}
	evt := mq.StockChangedFromEntry(entry, change.Product.StockLevel())
	if err := s.publisher.Publish(ctx, mq.EventStockChanged, evt); err != nil {
		logger.Warn("库存事件发布失败", zap.Error(err))
	}
}

// CheckAvailability 不跟踪库存的商品总是可售，current_stock 为 -1
func (s *ledgerService) CheckAvailability(ctx context.Context, productID int64, requested int) (*domain.Availability, error) {
	if requested <= 0 {
		return nil, domain.ValidationError("requested quantity must be positive")
	}
	products, err := s.stock.GetProducts(ctx, []int64{productID})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, domain.ErrProductNotFound
	}
	return availability(products[0], requested), nil
}

func availability(p *domain.Product, requested int) *domain.Availability {
	a := &domain.Availability{
		ProductID:    p.ID,
		CurrentStock: p.Quantity,
		Requested:    requested,
	}

	switch {
	case !p.IsAvailable():
		a.Message = fmt.Sprintf("%s is no longer available", p.Name)
	case !p.TrackInventory:
		a.Available = true
		a.CurrentStock = domain.UnlimitedStock
	case p.Quantity >= requested:
		a.Available = true
	case p.AllowBackorder:
		a.Available = true
		a.Message = fmt.Sprintf("only %d of %s in stock, %d will be backordered",
			p.Quantity, p.Name, requested-p.Quantity)
	case p.Quantity <= 0:
		a.Message = fmt.Sprintf("%s is out of stock", p.Name)
	default:
		a.Message = fmt.Sprintf("only %d of %s left in stock", p.Quantity, p.Name)
	}
	return a
}

// ValidateCart 汇总所有不可售的行，同一商品多行按合计数量判断
func (s *ledgerService) ValidateCart(ctx context.Context, items []domain.CartItem) (*domain.CartValidation, error) {
	requested := make(map[int64]int, len(items))
	var ids []int64
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, domain.ValidationError("quantity for product %d must be positive", it.ProductID)
		}
		if _, seen := requested[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		requested[it.ProductID] += it.Quantity
	}

	products, err := s.stock.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	result := &domain.CartValidation{Valid: true, Errors: []domain.CartIssue{}}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			result.Errors = append(result.Errors, domain.CartIssue{
				ProductID: id,
				Message:   fmt.Sprintf("product %d not found", id),
				Requested: requested[id],
			})
			continue
		}
		if a := availability(p, requested[id]); !a.Available {
			result.Errors = append(result.Errors, domain.CartIssue{
				ProductID:    id,
				Message:      a.Message,
				CurrentStock: a.CurrentStock,
				Requested:    a.Requested,
			})
		}
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}

func (s *ledgerService) History(ctx context.Context, productID int64, limit int) ([]*domain.StockHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.stock.ListHistory(ctx, productID, limit)
}

// sortedProductIDs 固定加锁顺序，避免并发下单时死锁
func sortedProductIDs(quantities map[int64]int) []int64 {
	ids := make([]int64, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *ledgerService) ApplyOrderPurchase(ctx context.Context, order *domain.Order) error {
	quantities := order.ProductQuantities()
	orderID := order.ID

	var errs []error
	for _, productID := range sortedProductIDs(quantities) {
		change, clamped, err := s.mutate(ctx, domain.StockMutation{
			ProductID:      productID,
			Mode:           domain.MutationDelta,
			Value:          -quantities[productID],
			ChangeType:     domain.ChangeTypePurchase,
			RelatedOrderID: &orderID,
			Note:           "order " + order.OrderNumber,
		})
		switch {
		case err == nil:
			s.afterCommit(ctx, change, clamped)
		case errors.Is(err, domain.ErrDuplicate):
			// 已扣减
		case errors.Is(err, domain.ErrProductNotFound):
			s.logger.Warn("订单商品已不存在，跳过扣减",
				zap.String("order_id", orderID), zap.Int64("product_id", productID))
		default:
			errs = append(errs, fmt.Errorf("product %d: %w", productID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *ledgerService) ApplyOrderReturn(ctx context.Context, order *domain.Order, actor *string) error {
	movements, err := s.stock.ListOrderMovements(ctx, order.ID)
	if err != nil {
		return err
	}

	orderID := order.ID
	var errs []error
	for _, m := range movements {
		// 只回补实际扣减的数量；截断为 0 的扣减无需回补
		if m.ChangeType != domain.ChangeTypePurchase || m.Delta >= 0 {
			continue
		}
		change, clamped, err := s.mutate(ctx, domain.StockMutation{
			ProductID:      m.ProductID,
			Mode:           domain.MutationDelta,
			Value:          -m.Delta,
			ChangeType:     domain.ChangeTypeReturn,
			RelatedOrderID: &orderID,
			Note:           fmt.Sprintf("order %s %s", order.OrderNumber, order.Status),
			Actor:          actor,
		})
		switch {
		case err == nil:
			s.afterCommit(ctx, change, clamped)
		case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrProductNotFound):
		default:
			errs = append(errs, fmt.Errorf("product %d: %w", m.ProductID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *ledgerService) ReconcileOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}

	if err := s.ApplyOrderPurchase(ctx, order); err != nil {
		return err
	}
	if order.Status.ReleasesStock() {
		return s.ApplyOrderReturn(ctx, order, nil)
	}
	return nil
}
