package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// Consumer RabbitMQ消费者
type Consumer struct {
	channels ChannelProvider
	config   *ConsumerConfig
	logger   *zap.Logger
	handler  MessageHandler

	queueName   string
	consumerTag string

	mu      sync.Mutex
	workers []*consumerWorker
	running atomic.Bool

	// 统计信息
	processedCount atomic.Int64
	failedCount    atomic.Int64
	retriedCount   atomic.Int64
}

type consumerWorker struct {
	id       int
	ch       *amqp.Channel
	delivery <-chan amqp.Delivery
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewConsumer 创建消费者
func NewConsumer(channels ChannelProvider, config *ConsumerConfig, logger *zap.Logger) *Consumer {
	if config == nil {
		config = DefaultConfig().Consumer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		channels: channels,
		config:   config,
		logger:   logger,
	}
}

// SetHandler 设置消息处理函数
func (c *Consumer) SetHandler(handler MessageHandler) {
	c.handler = handler
}

// StartConsuming 开始消费消息
func (c *Consumer) StartConsuming(ctx context.Context, queueName string) error {
	if c.handler == nil {
		return fmt.Errorf("message handler is not set")
	}
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("consumer is already running")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.queueName = queueName
	c.consumerTag = fmt.Sprintf("consumer-%s-%d", queueName, time.Now().Unix())

	c.logger.Info("开始消费消息",
		zap.String("queue", queueName),
		zap.String("consumer_tag", c.consumerTag),
		zap.Int("concurrent_consumers", c.config.ConcurrentConsumers))

	c.workers = make([]*consumerWorker, 0, c.config.ConcurrentConsumers)
	for i := 0; i < c.config.ConcurrentConsumers; i++ {
		w, err := c.startWorker(ctx, i)
		if err != nil {
			c.stopWorkersLocked()
			c.running.Store(false)
			return fmt.Errorf("failed to create worker %d: %w", i, err)
		}
		c.workers = append(c.workers, w)
	}
	return nil
}

// StopConsuming 停止消费并等待在途消息处理完毕
func (c *Consumer) StopConsuming() error {
	if !c.running.CompareAndSwap(true, false) {
		return fmt.Errorf("consumer is not running")
	}
	c.logger.Info("停止消费消息", zap.String("queue", c.queueName))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopWorkersLocked()
	return nil
}

// Restart 连接重建后重新订阅
func (c *Consumer) Restart(ctx context.Context) error {
	if c.running.Load() {
		_ = c.StopConsuming()
	}
	return c.StartConsuming(ctx, c.queueName)
}

func (c *Consumer) startWorker(ctx context.Context, id int) (*consumerWorker, error) {
	ch, err := c.channels.GetChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	if err := ch.Qos(c.config.PrefetchCount, 0, false); err != nil {
		c.channels.ReturnChannel(ch)
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(c.queueName, fmt.Sprintf("%s-%d", c.consumerTag, id), false, false, false, false, nil)
	if err != nil {
		c.channels.ReturnChannel(ch)
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w := &consumerWorker{
		id:       id,
		ch:       ch,
		delivery: deliveries,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run(workerCtx, w)
	return w, nil
}

func (c *Consumer) stopWorkersLocked() {
	for _, w := range c.workers {
		w.cancel()
	}
	for _, w := range c.workers {
		<-w.done
	}
	c.workers = nil
}

func (c *Consumer) run(ctx context.Context, w *consumerWorker) {
	defer close(w.done)
	defer func() {
		// 取消订阅后关闭通道，未确认的消息由 broker 重新投递
		_ = w.ch.Close()
	}()

	c.logger.Debug("消费者工作器启动", zap.Int("worker_id", w.id), zap.String("queue", c.queueName))

	for {
		select {
		case d, ok := <-w.delivery:
			if !ok {
				c.logger.Info("消费通道关闭", zap.Int("worker_id", w.id))
				return
			}
			c.handleDelivery(ctx, d)
		case <-ctx.Done():
			c.logger.Debug("消费者工作器停止", zap.Int("worker_id", w.id))
			return
		}
	}
}

// handleDelivery 处理单条消息：成功 ack，重试耗尽或不可重试时 nack 进入死信队列
func (c *Consumer) handleDelivery(parent context.Context, d amqp.Delivery) {
	ctx, cancel := context.WithTimeout(parent, c.config.ConsumeTimeout)
	defer cancel()

	var err error
	for attempt := 0; ; attempt++ {
		err = c.handler(ctx, d)
		if err == nil {
			if ackErr := d.Ack(false); ackErr != nil {
				c.logger.Error("消息确认失败", zap.Error(ackErr), zap.String("message_id", d.MessageId))
			}
			c.processedCount.Add(1)
			return
		}

		c.logger.Warn("消息处理失败",
			zap.Error(err),
			zap.String("message_id", d.MessageId),
			zap.String("routing_key", d.RoutingKey),
			zap.Int("attempt", attempt+1))

		if IsNonRetryableError(err) || attempt >= c.config.MaxRetryAttempts {
			break
		}
		c.retriedCount.Add(1)

		select {
		case <-time.After(c.config.RetryInterval):
			continue
		case <-ctx.Done():
		}
		break
	}

	c.failedCount.Add(1)

	// 进程正在退出时让 broker 重新投递
	if parent.Err() != nil {
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("消息重新入队失败", zap.Error(nackErr), zap.String("message_id", d.MessageId))
		}
		return
	}

	// requeue=false：配置了 DLX 的队列会转入死信队列，否则丢弃
	if nackErr := d.Nack(false, false); nackErr != nil {
		c.logger.Error("消息拒绝失败", zap.Error(nackErr), zap.String("message_id", d.MessageId))
	}
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	if c.running.Load() {
		return c.StopConsuming()
	}
	return nil
}

// IsRunning 检查是否正在运行
func (c *Consumer) IsRunning() bool {
	return c.running.Load()
}

// GetStats 获取统计信息
func (c *Consumer) GetStats() ConsumerStats {
	return ConsumerStats{
		QueueName:      c.queueName,
		ProcessedCount: c.processedCount.Load(),
		FailedCount:    c.failedCount.Load(),
		RetriedCount:   c.retriedCount.Load(),
		Running:        c.IsRunning(),
	}
}

// ConsumerStats 消费者统计信息
type ConsumerStats struct {
	QueueName      string `json:"queue_name"`
	ProcessedCount int64  `json:"processed_count"`
	FailedCount    int64  `json:"failed_count"`
	RetriedCount   int64  `json:"retried_count"`
	Running        bool   `json:"running"`
}

// JSONMessageHandler 通用JSON消息处理器，无法解析的消息不重试
func JSONMessageHandler[T any](handler func(ctx context.Context, data T, delivery amqp.Delivery) error) MessageHandler {
	return func(ctx context.Context, delivery amqp.Delivery) error {
		var data T
		if err := json.Unmarshal(delivery.Body, &data); err != nil {
			return &NonRetryableError{Err: fmt.Errorf("failed to unmarshal JSON message: %w", err)}
		}
		return handler(ctx, data, delivery)
	}
}

// NonRetryableError 不可重试错误
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable error: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// IsNonRetryableError 检查是否为不可重试错误
func IsNonRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var nonRetryable *NonRetryableError
	return errors.As(err, &nonRetryable)
}
