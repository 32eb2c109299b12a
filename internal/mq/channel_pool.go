package mq

import (
	"fmt"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ChannelPool 通道池，复用已打开的 AMQP 通道
type ChannelPool struct {
	maxSize  int
	channels chan *amqp.Channel
	conn     func() *amqp.Connection
	closed   atomic.Bool

	created   atomic.Int64
	reused    atomic.Int64
	discarded atomic.Int64
}

// NewChannelPool 创建通道池，conn 返回当前可用连接
func NewChannelPool(maxSize int, conn func() *amqp.Connection) *ChannelPool {
	return &ChannelPool{
		maxSize:  maxSize,
		channels: make(chan *amqp.Channel, maxSize),
		conn:     conn,
	}
}

// Get 获取通道，池中无可用通道时新建
func (cp *ChannelPool) Get() (*amqp.Channel, error) {
	if cp.closed.Load() {
		return nil, fmt.Errorf("channel pool is closed")
	}

	for {
		select {
		case ch := <-cp.channels:
			if ch != nil && !ch.IsClosed() {
				cp.reused.Add(1)
				return ch, nil
			}
			cp.discarded.Add(1)
			continue
		default:
		}
		break
	}

	conn := cp.conn()
	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("connection is not available")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	cp.created.Add(1)
	return ch, nil
}

// Return 归还通道，池已满或已关闭时关闭该通道
func (cp *ChannelPool) Return(ch *amqp.Channel) {
	if ch == nil || ch.IsClosed() {
		cp.discarded.Add(1)
		return
	}
	if cp.closed.Load() {
		_ = ch.Close()
		return
	}

	select {
	case cp.channels <- ch:
	default:
		_ = ch.Close()
		cp.discarded.Add(1)
	}
}

// Drain 关闭池中现有通道（连接重建后旧通道全部失效）
func (cp *ChannelPool) Drain() {
	for {
		select {
		case ch := <-cp.channels:
			if ch != nil && !ch.IsClosed() {
				_ = ch.Close()
			}
			cp.discarded.Add(1)
		default:
			return
		}
	}
}

// Close 关闭通道池
func (cp *ChannelPool) Close() {
	if !cp.closed.CompareAndSwap(false, true) {
		return
	}
	cp.Drain()
}

// WithChannel 借出通道执行 fn，结束后归还
func (cp *ChannelPool) WithChannel(fn func(*amqp.Channel) error) error {
	ch, err := cp.Get()
	if err != nil {
		return err
	}
	defer cp.Return(ch)
	return fn(ch)
}

// GetStats 获取通道池统计信息
func (cp *ChannelPool) GetStats() ChannelPoolStats {
	return ChannelPoolStats{
		MaxSize:   cp.maxSize,
		Available: len(cp.channels),
		Created:   cp.created.Load(),
		Reused:    cp.reused.Load(),
		Discarded: cp.discarded.Load(),
		Closed:    cp.closed.Load(),
	}
}

// ChannelPoolStats 通道池统计信息
type ChannelPoolStats struct {
	MaxSize   int   `json:"max_size"`
	Available int   `json:"available"`
	Created   int64 `json:"created"`
	Reused    int64 `json:"reused"`
	Discarded int64 `json:"discarded"`
	Closed    bool  `json:"closed"`
}
