package mq

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/metrics"
)

// EventPublisher 发布领域事件。调用方在事务提交后调用，失败只记录日志
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// AMQPPublisher 通过 topic 交换机发布事件
type AMQPPublisher struct {
	producer *Producer
	exchange string
	appID    string
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAMQPPublisher 创建事件发布器
func NewAMQPPublisher(producer *Producer, exchange, appID string, m *metrics.Metrics, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{
		producer: producer,
		exchange: exchange,
		appID:    appID,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish 实现 EventPublisher
func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	evt, err := NewEvent(eventType, payload, p.now())
	if err != nil {
		p.metrics.EventPublished(eventType, err)
		return err
	}

	err = p.producer.PublishJSON(ctx, p.exchange, eventType, evt, &PublishOptions{
		MessageID:  evt.ID,
		Type:       eventType,
		Timestamp:  evt.OccurredAt,
		AppID:      p.appID,
		Persistent: true,
	})
	p.metrics.EventPublished(eventType, err)
	if err != nil {
		p.logger.Warn("领域事件发布失败",
			zap.String("event_type", eventType),
			zap.String("event_id", evt.ID),
			zap.Error(err))
		return err
	}
	p.logger.Debug("领域事件已发布", zap.String("event_type", eventType), zap.String("event_id", evt.ID))
	return nil
}

// NopPublisher 未启用消息队列时使用
type NopPublisher struct{}

// Publish 实现 EventPublisher
func (NopPublisher) Publish(context.Context, string, any) error { return nil }
