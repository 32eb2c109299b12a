package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrProducerClosed 生产者已关闭
var ErrProducerClosed = errors.New("producer is closed")

// ChannelProvider 借还 AMQP 通道，ConnectionManager 实现该接口
type ChannelProvider interface {
	GetChannel() (*amqp.Channel, error)
	ReturnChannel(ch *amqp.Channel)
}

// Producer RabbitMQ生产者
type Producer struct {
	channels ChannelProvider
	config   *ProducerConfig
	logger   *zap.Logger

	closed atomic.Bool

	// 统计信息
	publishedCount atomic.Int64
	confirmedCount atomic.Int64
	failedCount    atomic.Int64
}

// PublishOptions 发布选项
type PublishOptions struct {
	Mandatory   bool
	Headers     amqp.Table
	ContentType string
	MessageID   string
	Timestamp   time.Time
	Type        string
	AppID       string
	Persistent  bool
}

// NewProducer 创建生产者
func NewProducer(channels ChannelProvider, config *ProducerConfig, logger *zap.Logger) *Producer {
	if config == nil {
		config = DefaultConfig().Producer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		channels: channels,
		config:   config,
		logger:   logger,
	}
}

// Publish 发布消息，失败时按配置重试
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body []byte, options *PublishOptions) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	publishing := buildPublishing(body, options)
	mandatory := options != nil && options.Mandatory
	maxAttempts := p.config.MaxRetryAttempts + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = p.publishOnce(ctx, exchange, routingKey, mandatory, publishing)
		if lastErr == nil {
			return nil
		}

		p.logger.Warn("消息发布失败",
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(lastErr))

		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(p.config.RetryInterval):
		case <-ctx.Done():
			p.failedCount.Add(1)
			return ctx.Err()
		}
	}

	p.failedCount.Add(1)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxAttempts, lastErr)
}

// PublishJSON 发布JSON消息
func (p *Producer) PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}, options *PublishOptions) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if options == nil {
		options = &PublishOptions{}
	}
	options.ContentType = "application/json"
	return p.Publish(ctx, exchange, routingKey, body, options)
}

func (p *Producer) publishOnce(ctx context.Context, exchange, routingKey string, mandatory bool, publishing amqp.Publishing) error {
	ch, err := p.channels.GetChannel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}
	defer p.channels.ReturnChannel(ch)

	if p.config.EnableConfirm {
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("failed to set confirm mode: %w", err)
		}
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	dc, err := ch.PublishWithDeferredConfirmWithContext(publishCtx, exchange, routingKey, mandatory, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.publishedCount.Add(1)

	// 非确认模式下 dc 为 nil
	if dc == nil {
		return nil
	}

	confirmCtx, cancelConfirm := context.WithTimeout(ctx, p.config.ConfirmTimeout)
	defer cancelConfirm()

	acked, err := dc.WaitContext(confirmCtx)
	if err != nil {
		return fmt.Errorf("publish confirmation: %w", err)
	}
	if !acked {
		return fmt.Errorf("message was nacked by broker")
	}
	p.confirmedCount.Add(1)
	return nil
}

// buildPublishing 构建发布消息
func buildPublishing(body []byte, options *PublishOptions) amqp.Publishing {
	publishing := amqp.Publishing{
		Body:        body,
		ContentType: "application/octet-stream",
		Timestamp:   time.Now().UTC(),
	}
	if options == nil {
		return publishing
	}

	if options.Headers != nil {
		publishing.Headers = options.Headers
	}
	if options.ContentType != "" {
		publishing.ContentType = options.ContentType
	}
	if options.MessageID != "" {
		publishing.MessageId = options.MessageID
	}
	if !options.Timestamp.IsZero() {
		publishing.Timestamp = options.Timestamp
	}
	if options.Type != "" {
		publishing.Type = options.Type
	}
	if options.AppID != "" {
		publishing.AppId = options.AppID
	}
	if options.Persistent {
		publishing.DeliveryMode = amqp.Persistent
	}
	return publishing
}

// Close 关闭生产者
func (p *Producer) Close() error {
	p.closed.Store(true)
	return nil
}

// GetStats 获取统计信息
func (p *Producer) GetStats() ProducerStats {
	return ProducerStats{
		PublishedCount: p.publishedCount.Load(),
		ConfirmedCount: p.confirmedCount.Load(),
		FailedCount:    p.failedCount.Load(),
		ConfirmMode:    p.config.EnableConfirm,
	}
}

// ProducerStats 生产者统计信息
type ProducerStats struct {
	PublishedCount int64 `json:"published_count"`
	ConfirmedCount int64 `json:"confirmed_count"`
	FailedCount    int64 `json:"failed_count"`
	ConfirmMode    bool  `json:"confirm_mode"`
}
