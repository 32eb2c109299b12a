package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/clock"
	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/metrics"
	"github.com/MorseWayne/apparel_shop/internal/mq"
	"github.com/MorseWayne/apparel_shop/internal/repo"
	"github.com/MorseWayne/apparel_shop/internal/tracing"
)

// AlertService 库存告警引擎
type AlertService interface {
	// Create 手工或自动创建告警；已有同类型未解决告警时返回该告警
	Create(ctx context.Context, productID int64, alertType domain.AlertType, note string) (*domain.StockAlert, error)
	Resolve(ctx context.Context, alertID, note string, actor *string) (*domain.StockAlert, error)
	// ResolveOpen 解决商品某类型的未解决告警，没有时为空操作
	ResolveOpen(ctx context.Context, productID int64, alertType domain.AlertType, note string, actor *string) error
	ListOpen(ctx context.Context) ([]*domain.AlertWithProduct, error)
	CountOpen(ctx context.Context) (int64, error)
	// Evaluate 按阈值策略为当前数量开启/解决 low_stock 与 out_of_stock 告警
	Evaluate(ctx context.Context, product *domain.Product, quantity int) error
}

type alertService struct {
	alerts    repo.AlertRepository
	stock     repo.StockRepository
	publisher mq.EventPublisher
	metrics   *metrics.Metrics
	clock     clock.Clock
	logger    *zap.Logger
}

// NewAlertService 创建告警服务
func NewAlertService(
	alerts repo.AlertRepository,
	stock repo.StockRepository,
	publisher mq.EventPublisher,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *zap.Logger,
) AlertService {
	if publisher == nil {
		publisher = mq.NopPublisher{}
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &alertService{
		alerts:    alerts,
		stock:     stock,
		publisher: publisher,
		metrics:   m,
		clock:     clk,
		logger:    logger,
	}
}

func (s *alertService) Create(ctx context.Context, productID int64, alertType domain.AlertType, note string) (*domain.StockAlert, error) {
	if !alertType.IsValid() {
		return nil, domain.ValidationError("unknown alert type %q", alertType)
	}

	products, err := s.stock.GetProducts(ctx, []int64{productID})
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if len(products) == 0 {
		return nil, domain.ErrProductNotFound
	}

	return s.open(ctx, products[0].ID, alertType, products[0].Quantity, note)
}

// open 插入告警，唯一约束冲突说明已有未解决告警，返回已有记录
func (s *alertService) open(ctx context.Context, productID int64, alertType domain.AlertType, quantity int, note string) (*domain.StockAlert, error) {
	existing, err := s.alerts.GetOpen(ctx, productID, alertType)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	alert := &domain.StockAlert{
		ID:              uuid.NewString(),
		ProductID:       productID,
		AlertType:       alertType,
		QuantityAtAlert: quantity,
		Note:            note,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.alerts.Insert(ctx, alert); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return s.alerts.GetOpen(ctx, productID, alertType)
		}
		return nil, err
	}

	s.metrics.AlertOpened(string(alertType))
	s.logger.Info("库存告警已开启",
		zap.String("alert_id", alert.ID),
		zap.Int64("product_id", productID),
		zap.String("alert_type", string(alertType)),
		zap.Int("quantity", quantity))
	s.publish(ctx, mq.EventAlertOpened, mq.AlertChangedFrom(alert))
	return alert, nil
}

func (s *alertService) Resolve(ctx context.Context, alertID, note string, actor *string) (*domain.StockAlert, error) {
	alert, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, domain.ErrAlertNotFound
	}
	if alert.IsResolved {
		return alert, nil
	}

	if err := s.resolve(ctx, alert, note, actor); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *alertService) resolve(ctx context.Context, alert *domain.StockAlert, note string, actor *string) error {
	now := s.clock.Now()
	updated, err := s.alerts.Resolve(ctx, alert.ID, now, actor, note)
	if err != nil {
		return err
	}

	alert.IsResolved = true
	if !updated {
		// 并发请求已经解决
		return nil
	}
	alert.ResolvedAt = &now
	alert.ResolvedBy = actor
	if note != "" {
		alert.Note = note
	}

	s.metrics.AlertResolved()
	s.logger.Info("库存告警已解决",
		zap.String("alert_id", alert.ID),
		zap.Int64("product_id", alert.ProductID),
		zap.String("alert_type", string(alert.AlertType)))
	s.publish(ctx, mq.EventAlertResolved, mq.AlertChangedFrom(alert))
	return nil
}

func (s *alertService) ResolveOpen(ctx context.Context, productID int64, alertType domain.AlertType, note string, actor *string) error {
	alert, err := s.alerts.GetOpen(ctx, productID, alertType)
	if err != nil || alert == nil {
		return err
	}
	return s.resolve(ctx, alert, note, actor)
}

func (s *alertService) ListOpen(ctx context.Context) ([]*domain.AlertWithProduct, error) {
	return s.alerts.ListOpen(ctx)
}

func (s *alertService) CountOpen(ctx context.Context) (int64, error) {
	return s.alerts.CountOpen(ctx)
}

// 自动维护的告警类型，restock_needed 只能手工开启和解决
var levelAlertTypes = []domain.AlertType{domain.AlertTypeLowStock, domain.AlertTypeOutOfStock}

func (s *alertService) Evaluate(ctx context.Context, product *domain.Product, quantity int) (err error) {
	ctx, span := tracing.Start(ctx, "alerts.evaluate",
		attribute.Int64("product_id", product.ID),
		attribute.Int("quantity", quantity))
	defer func() { tracing.End(span, err) }()

	level := domain.StockLevelInStock
	if product.TrackInventory {
		level = domain.EvaluateStockLevel(quantity, product.AlertLevel)
	}
	want := domain.AlertTypeForLevel(level)

	var errs []error
	for _, t := range levelAlertTypes {
		if t == want {
			continue
		}
		if err := s.ResolveOpen(ctx, product.ID, t, fmt.Sprintf("stock level is now %s", level), nil); err != nil {
			errs = append(errs, err)
		}
	}

	if want != "" {
		note := fmt.Sprintf("quantity %d at or below alert level %d", quantity, product.AlertLevel)
		if want == domain.AlertTypeOutOfStock {
			note = "out of stock"
		}
		if _, err := s.open(ctx, product.ID, want, quantity, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *alertService) publish(ctx context.Context, eventType string, payload any) {
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn("告警事件发布失败", zap.String("event_type", eventType), zap.Error(err))
	}
}
