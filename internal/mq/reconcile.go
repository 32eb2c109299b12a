package mq

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/metrics"
)

// LedgerReconciler 按订单当前状态幂等地补齐库存扣减与回补
type LedgerReconciler interface {
	ReconcileOrder(ctx context.Context, orderID string) error
}

// orderRef order.* 事件负载的公共字段
type orderRef struct {
	OrderID string `json:"order_id"`
}

// ReconcileHandler 消费 order.created / order.status_changed，
// 对同步路径上可能失败的库存变动做补偿
func ReconcileHandler(reconciler LedgerReconciler, m *metrics.Metrics, logger *zap.Logger) MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return JSONMessageHandler(func(ctx context.Context, evt Event, d amqp.Delivery) error {
		switch evt.Type {
		case EventOrderCreated, EventOrderStatusChanged:
		default:
			m.ReconcileMessage("skipped")
			return nil
		}

		var ref orderRef
		if err := evt.Decode(&ref); err != nil || ref.OrderID == "" {
			m.ReconcileMessage("invalid")
			return &NonRetryableError{Err: errors.New("event has no order_id")}
		}

		err := reconciler.ReconcileOrder(ctx, ref.OrderID)
		switch {
		case err == nil:
			m.ReconcileMessage("applied")
			return nil
		case errors.Is(err, domain.ErrNotFound):
			// 订单不存在，重试没有意义
			m.ReconcileMessage("not_found")
			logger.Warn("对账订单不存在", zap.String("order_id", ref.OrderID), zap.String("event_id", evt.ID))
			return &NonRetryableError{Err: err}
		default:
			m.ReconcileMessage("failed")
			return err
		}
	})
}

// StartReconcileConsumer 创建并启动对账消费者，连接重建后自动重新订阅
func StartReconcileConsumer(ctx context.Context, cm *ConnectionManager, cfg *Config, reconciler LedgerReconciler, m *metrics.Metrics, logger *zap.Logger) (*Consumer, error) {
	consumer := NewConsumer(cm, cfg.Consumer, logger)
	consumer.SetHandler(ReconcileHandler(reconciler, m, logger))
	if err := consumer.StartConsuming(ctx, cfg.Topology.ReconcileQueue); err != nil {
		return nil, err
	}

	cm.OnReconnected(func() {
		if err := cm.DeclareTopology(cfg.Topology); err != nil {
			logger.Error("重连后声明拓扑失败", zap.Error(err))
			return
		}
		if err := consumer.Restart(ctx); err != nil {
			logger.Error("重连后重启消费者失败", zap.Error(err))
		}
	})
	return consumer, nil
}
