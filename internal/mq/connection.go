package mq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ConnectionState 连接状态
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionManager RabbitMQ连接管理器，断线后自动重连
type ConnectionManager struct {
	config *Config
	logger *zap.Logger

	conn      *amqp.Connection
	connMutex sync.RWMutex
	state     atomic.Int32

	channelPool *ChannelPool

	stopCh         chan struct{}
	stopOnce       sync.Once
	reconnectCount atomic.Int32

	// 重连成功后回调（重新声明拓扑、重启消费者）
	onReconnected func()
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager(config *Config, logger *zap.Logger) *ConnectionManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	cm := &ConnectionManager{
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	cm.channelPool = NewChannelPool(config.MaxChannels, cm.GetConnection)
	return cm
}

// Connect 建立连接
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	if !cm.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("connection is already in progress or connected")
	}

	cm.logger.Info("connecting to RabbitMQ", zap.String("url", cm.config.RedactedURL()))

	if err := cm.dial(ctx); err != nil {
		cm.state.Store(int32(StateDisconnected))
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	cm.logger.Info("RabbitMQ connected")
	go cm.monitorConnection()
	return nil
}

func (cm *ConnectionManager) dial(ctx context.Context) error {
	timeout := cm.config.ConnectionTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	conn, err := amqp.DialConfig(cm.config.GetConnectionURL(), amqp.Config{
		Heartbeat: cm.config.HeartbeatInterval,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return err
	}

	cm.connMutex.Lock()
	cm.conn = conn
	cm.connMutex.Unlock()
	cm.state.Store(int32(StateConnected))
	return nil
}

// GetConnection 获取连接
func (cm *ConnectionManager) GetConnection() *amqp.Connection {
	cm.connMutex.RLock()
	defer cm.connMutex.RUnlock()
	return cm.conn
}

// GetChannel 获取通道
func (cm *ConnectionManager) GetChannel() (*amqp.Channel, error) {
	return cm.channelPool.Get()
}

// ReturnChannel 归还通道
func (cm *ConnectionManager) ReturnChannel(ch *amqp.Channel) {
	cm.channelPool.Return(ch)
}

// IsConnected 检查是否已连接
func (cm *ConnectionManager) IsConnected() bool {
	return cm.GetState() == StateConnected
}

// PingContext 供就绪检查使用，未连接时返回当前状态
func (cm *ConnectionManager) PingContext(ctx context.Context) error {
	if state := cm.GetState(); state != StateConnected {
		return fmt.Errorf("rabbitmq %s", state)
	}
	return nil
}

// GetState 获取连接状态
func (cm *ConnectionManager) GetState() ConnectionState {
	return ConnectionState(cm.state.Load())
}

// OnReconnected 设置重连成功回调
func (cm *ConnectionManager) OnReconnected(fn func()) {
	cm.onReconnected = fn
}

// Close 关闭连接
func (cm *ConnectionManager) Close() error {
	if cm.GetState() == StateClosed {
		return nil
	}
	cm.state.Store(int32(StateClosed))
	cm.stopOnce.Do(func() { close(cm.stopCh) })

	cm.logger.Info("closing RabbitMQ connection")
	cm.channelPool.Close()

	cm.connMutex.Lock()
	defer cm.connMutex.Unlock()
	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		return err
	}
	return nil
}

// monitorConnection 监听连接关闭事件并触发重连
func (cm *ConnectionManager) monitorConnection() {
	conn := cm.GetConnection()
	if conn == nil {
		return
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case err := <-closeCh:
		if err == nil {
			// 主动关闭
			return
		}
		cm.logger.Error("RabbitMQ connection closed unexpectedly", zap.Error(err))
		if !cm.state.CompareAndSwap(int32(StateConnected), int32(StateReconnecting)) {
			return
		}
		cm.channelPool.Drain()
		if cm.config.EnableReconnect {
			go cm.reconnect()
		} else {
			cm.state.Store(int32(StateDisconnected))
		}
	case <-cm.stopCh:
	}
}

// reconnect 按固定间隔重连，达到最大次数后放弃
func (cm *ConnectionManager) reconnect() {
	for attempt := 1; ; attempt++ {
		select {
		case <-cm.stopCh:
			return
		case <-time.After(cm.config.ReconnectInterval):
		}

		cm.reconnectCount.Add(1)
		ctx, cancel := context.WithTimeout(context.Background(), cm.config.ConnectionTimeout)
		err := cm.dial(ctx)
		cancel()

		if err == nil {
			cm.logger.Info("RabbitMQ reconnected", zap.Int("attempts", attempt))
			go cm.monitorConnection()
			if cm.onReconnected != nil {
				cm.onReconnected()
			}
			return
		}

		cm.logger.Warn("RabbitMQ reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
		if max := cm.config.MaxReconnectAttempts; max > 0 && attempt >= max {
			cm.logger.Error("RabbitMQ reconnect gave up", zap.Int("max_attempts", max))
			cm.state.Store(int32(StateDisconnected))
			return
		}
	}
}

// GetStats 获取连接统计信息
func (cm *ConnectionManager) GetStats() ConnectionStats {
	return ConnectionStats{
		State:            cm.GetState().String(),
		ReconnectCount:   cm.reconnectCount.Load(),
		ChannelPoolStats: cm.channelPool.GetStats(),
	}
}

// ConnectionStats 连接统计信息
type ConnectionStats struct {
	State            string           `json:"state"`
	ReconnectCount   int32            `json:"reconnect_count"`
	ChannelPoolStats ChannelPoolStats `json:"channel_pool_stats"`
}
