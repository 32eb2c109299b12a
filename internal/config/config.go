// Package config 负责从 .env 文件与环境变量加载应用配置并做基础校验。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config 聚合应用全部配置
type Config struct {
	App         AppConfig
	Log         LogConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Cache       CacheConfig
	CORS        CORSConfig
	JWT         JWTConfig
	Migrations  MigrationsConfig
	Shop        ShopConfig
	MQ          MQConfig
	RateLimit   RateLimitConfig
	Metrics     MetricsConfig
	Idempotency IdempotencyConfig
}

// AppConfig 应用基础配置
type AppConfig struct {
	Env             string
	Name            string
	Version         string
	Port            int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string // debug, info, warn, error
	Encoding string // json, console
}

// DatabaseConfig MySQL 连接配置
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN 返回 go-sql-driver/mysql 使用的连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&charset=utf8mb4&multiStatements=true",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr 返回 host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enabled bool
	Type    string // redis, memory
	TTL     time.Duration
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// JWTConfig 令牌配置
type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// MigrationsConfig 数据库迁移配置
type MigrationsConfig struct {
	Dir string
}

// ShopConfig 店铺业务默认值，store_settings 表缺失时使用
type ShopConfig struct {
	OrderNumberPrefix     string
	TaxRate               decimal.Decimal
	ShippingFlat          decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	Currency              string
}

// MQConfig RabbitMQ 配置
type MQConfig struct {
	Enabled         bool
	Host            string
	Port            int
	Username        string
	Password        string
	VHost           string
	Exchange        string
	Queue           string
	ConsumerEnabled bool
}

// RateLimitConfig 下单限流配置
type RateLimitConfig struct {
	Enabled       bool
	Algorithm     string // token_bucket | fixed_window
	CheckoutRate  int64
	CheckoutBurst int64
	Window        time.Duration
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// IdempotencyConfig 下单幂等配置
type IdempotencyConfig struct {
	TTL time.Duration
}

// Load 加载 .env（可选）与环境变量，返回校验后的配置
func Load() (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Env:             getString("APP_ENV", "dev"),
			Name:            getString("APP_NAME", "apparel-shop"),
			Version:         getString("APP_VERSION", "0.1.0"),
			Port:            getInt("APP_PORT", 8080),
			RequestTimeout:  getDuration("APP_REQUEST_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDuration("APP_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Log: LogConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Database: DatabaseConfig{
			Host:            getString("DB_HOST", "127.0.0.1"),
			Port:            getInt("DB_PORT", 3306),
			User:            getString("DB_USER", "root"),
			Password:        getString("DB_PASSWORD", ""),
			DBName:          getString("DB_NAME", "apparel_shop"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getString("REDIS_HOST", "127.0.0.1"),
			Port:     getInt("REDIS_PORT", 6379),
			Password: getString("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled: getBool("CACHE_ENABLED", true),
			Type:    getString("CACHE_TYPE", "redis"),
			TTL:     getDuration("CACHE_TTL", 5*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getList("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID", "X-Idempotency-Key"}),
		},
		JWT: JWTConfig{
			Secret:          getString("JWT_SECRET", ""),
			AccessTokenTTL:  getDuration("JWT_ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL: getDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		Migrations: MigrationsConfig{
			Dir: getString("MIGRATIONS_DIR", "migrations"),
		},
		Shop: ShopConfig{
			OrderNumberPrefix:     getString("SHOP_ORDER_PREFIX", "ORD"),
			TaxRate:               getDecimal("SHOP_TAX_RATE", decimal.RequireFromString("0.10")),
			ShippingFlat:          getDecimal("SHOP_SHIPPING_FLAT", decimal.NewFromInt(10)),
			FreeShippingThreshold: getDecimal("SHOP_FREE_SHIPPING_THRESHOLD", decimal.NewFromInt(100)),
			Currency:              getString("SHOP_CURRENCY", "USD"),
		},
		MQ: MQConfig{
			Enabled:         getBool("MQ_ENABLED", false),
			Host:            getString("MQ_HOST", "127.0.0.1"),
			Port:            getInt("MQ_PORT", 5672),
			Username:        getString("MQ_USERNAME", "guest"),
			Password:        getString("MQ_PASSWORD", "guest"),
			VHost:           getString("MQ_VHOST", "/"),
			Exchange:        getString("MQ_EXCHANGE", "shop.events"),
			Queue:           getString("MQ_QUEUE", "shop.ledger.reconcile"),
			ConsumerEnabled: getBool("MQ_CONSUMER_ENABLED", true),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getBool("RATE_LIMIT_ENABLED", true),
			Algorithm:     getString("RATE_LIMIT_ALGORITHM", "token_bucket"),
			CheckoutRate:  int64(getInt("RATE_LIMIT_CHECKOUT_RATE", 10)),
			CheckoutBurst: int64(getInt("RATE_LIMIT_CHECKOUT_BURST", 20)),
			Window:        getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Metrics: MetricsConfig{
			Enabled: getBool("METRICS_ENABLED", true),
			Path:    getString("METRICS_PATH", "/metrics"),
		},
		Idempotency: IdempotencyConfig{
			TTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	var errs []error
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT out of range: %d", c.App.Port))
	}
	if c.App.RequestTimeout <= 0 {
		errs = append(errs, errors.New("APP_REQUEST_TIMEOUT must be positive"))
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_ENCODING must be json or console, got %q", c.Log.Encoding))
	}
	if c.Database.DBName == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.App.Env == "prod" && c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in prod"))
	}
	if c.Shop.OrderNumberPrefix == "" {
		errs = append(errs, errors.New("SHOP_ORDER_PREFIX is required"))
	}
	if c.Shop.TaxRate.IsNegative() {
		errs = append(errs, errors.New("SHOP_TAX_RATE must not be negative"))
	}
	if c.Shop.ShippingFlat.IsNegative() || c.Shop.FreeShippingThreshold.IsNegative() {
		errs = append(errs, errors.New("shipping settings must not be negative"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.CheckoutRate <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit requires positive rate and window"))
	}
	if c.RateLimit.Algorithm != "token_bucket" && c.RateLimit.Algorithm != "fixed_window" {
		errs = append(errs, fmt.Errorf("unsupported rate limit algorithm %q", c.RateLimit.Algorithm))
	}
	return errors.Join(errs...)
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getInt(key string, def int) int {
	v := getString(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := getString(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getDuration 支持 "30s" 形式，也兼容纯数字（按秒）
func getDuration(key string, def time.Duration) time.Duration {
	v := getString(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func getDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := getString(key, "")
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}

func getList(key string, def []string) []string {
	v := getString(key, "")
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
