// Package mq 提供 RabbitMQ 连接管理、事件发布与台账对账消费。
package mq

import (
	"fmt"
	"net/url"
	"time"

	"github.com/MorseWayne/apparel_shop/internal/config"
)

// Config RabbitMQ配置
type Config struct {
	// 连接配置
	Host     string
	Port     int
	Username string
	Password string
	VHost    string

	MaxChannels       int
	ConnectionTimeout time.Duration
	HeartbeatInterval time.Duration

	// 重连配置
	EnableReconnect      bool
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int // 0 表示不限次数

	Producer *ProducerConfig
	Consumer *ConsumerConfig
	Topology *TopologyConfig
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	// 发布确认
	EnableConfirm  bool
	ConfirmTimeout time.Duration

	// 重试配置
	MaxRetryAttempts int
	RetryInterval    time.Duration

	PublishTimeout time.Duration
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	PrefetchCount int

	// 重试配置
	MaxRetryAttempts int
	RetryInterval    time.Duration

	// 最终失败的消息进入死信队列，否则直接丢弃
	EnableDLX bool

	ConsumeTimeout      time.Duration
	ConcurrentConsumers int
}

// TopologyConfig 交换机与队列命名
type TopologyConfig struct {
	Exchange       string // topic 交换机，领域事件按类型路由
	ReconcileQueue string // 台账对账队列
	DLXExchange    string
	DLQ            string
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5672,
		Username: "guest",
		Password: "guest",
		VHost:    "/",

		MaxChannels:       16,
		ConnectionTimeout: 10 * time.Second,
		HeartbeatInterval: 10 * time.Second,

		EnableReconnect:      true,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 0,

		Producer: &ProducerConfig{
			EnableConfirm:    true,
			ConfirmTimeout:   5 * time.Second,
			MaxRetryAttempts: 2,
			RetryInterval:    200 * time.Millisecond,
			PublishTimeout:   5 * time.Second,
		},

		Consumer: &ConsumerConfig{
			PrefetchCount:       10,
			MaxRetryAttempts:    3,
			RetryInterval:       time.Second,
			EnableDLX:           true,
			ConsumeTimeout:      30 * time.Second,
			ConcurrentConsumers: 1,
		},

		Topology: &TopologyConfig{
			Exchange:       "shop.events",
			ReconcileQueue: "shop.ledger.reconcile",
			DLXExchange:    "shop.events.dlx",
			DLQ:            "shop.events.dlq",
		},
	}
}

// FromAppConfig 由应用配置构造
func FromAppConfig(c config.MQConfig) *Config {
	cfg := DefaultConfig()
	cfg.Host = c.Host
	cfg.Port = c.Port
	cfg.Username = c.Username
	cfg.Password = c.Password
	cfg.VHost = c.VHost
	if c.Exchange != "" {
		cfg.Topology.Exchange = c.Exchange
		cfg.Topology.DLXExchange = c.Exchange + ".dlx"
		cfg.Topology.DLQ = c.Exchange + ".dlq"
	}
	if c.Queue != "" {
		cfg.Topology.ReconcileQueue = c.Queue
	}
	return cfg
}

// GetConnectionURL 获取连接URL
func (c *Config) GetConnectionURL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.VHost,
	}
	return u.String()
}

// RedactedURL 用于日志输出，不含密码
func (c *Config) RedactedURL() string {
	return fmt.Sprintf("amqp://%s@%s:%d%s", c.Username, c.Host, c.Port, c.VHost)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.MaxChannels <= 0 {
		return fmt.Errorf("max_channels must be greater than 0")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be greater than 0")
	}
	if c.Topology == nil || c.Topology.Exchange == "" || c.Topology.ReconcileQueue == "" {
		return fmt.Errorf("exchange and reconcile queue are required")
	}
	if c.Consumer != nil && c.Consumer.ConcurrentConsumers <= 0 {
		return fmt.Errorf("concurrent_consumers must be greater than 0")
	}
	return nil
}
