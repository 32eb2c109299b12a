package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/api"
	"github.com/MorseWayne/apparel_shop/internal/cache"
	"github.com/MorseWayne/apparel_shop/internal/clock"
	"github.com/MorseWayne/apparel_shop/internal/config"
	"github.com/MorseWayne/apparel_shop/internal/database"
	"github.com/MorseWayne/apparel_shop/internal/limiter"
	"github.com/MorseWayne/apparel_shop/internal/logger"
	"github.com/MorseWayne/apparel_shop/internal/metrics"
	mw "github.com/MorseWayne/apparel_shop/internal/middleware"
	"github.com/MorseWayne/apparel_shop/internal/mq"
	"github.com/MorseWayne/apparel_shop/internal/repo"
	"github.com/MorseWayne/apparel_shop/internal/router"
	"github.com/MorseWayne/apparel_shop/internal/service"
	"github.com/MorseWayne/apparel_shop/internal/tracing"
)

// App 持有需要在退出时关闭的资源
type App struct {
	db       *database.DB
	cache    cache.Cache
	mqConn   *mq.ConnectionManager
	producer *mq.Producer
	consumer *mq.Consumer
}

// initConfigAndLogger 初始化配置和日志器
func initConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %v", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %v", err)
	}

	return cfg, lg, nil
}

// initDatabase 初始化数据库连接并执行迁移
func initDatabase(cfg *config.Config, lg *zap.Logger) (*database.DB, error) {
	db, err := database.New(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// 处理请求前确保表结构就绪
	migrationsDir := cfg.Migrations.Dir
	lg.Sugar().Infow("using migrations directory", "path", migrationsDir)

	if err := db.RunMigrations(migrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %v", err)
	}

	return db, nil
}

// initCache 初始化缓存实例
// Redis 不可用时回落到内存缓存，此时下单限流关闭
func initCache(cfg *config.Config, lg *zap.Logger) cache.Cache {
	if !cfg.Cache.Enabled {
		lg.Sugar().Infow("cache disabled")
		return cache.NewNullCache()
	}

	switch cfg.Cache.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			lg.Sugar().Warnw("failed to connect to Redis, falling back to memory cache", "error", err)
			return cache.NewMemoryCache()
		}
		lg.Sugar().Infow("cache enabled", "type", "redis", "addr", cfg.Redis.Addr(), "ttl", cfg.Cache.TTL)
		return redisCache
	case "memory":
		lg.Sugar().Infow("cache enabled", "type", "memory", "ttl", cfg.Cache.TTL)
		return cache.NewMemoryCache()
	default:
		lg.Sugar().Warnw("unknown cache type, using memory cache", "type", cfg.Cache.Type)
		return cache.NewMemoryCache()
	}
}

// initCheckoutLimiter 下单限流器，依赖 Redis；不可用时返回 nil
func initCheckoutLimiter(cfg *config.Config, c cache.Cache, lg *zap.Logger) limiter.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	redisCache, ok := c.(*cache.RedisCache)
	if !ok {
		lg.Sugar().Warnw("checkout rate limit requires redis cache, disabled")
		return nil
	}

	l, err := limiter.NewFactory(redisCache.Client()).Create(limiter.LimiterType(cfg.RateLimit.Algorithm), &limiter.Config{
		Rate:      cfg.RateLimit.CheckoutRate,
		Window:    cfg.RateLimit.Window,
		Burst:     cfg.RateLimit.CheckoutBurst,
		KeyPrefix: "ratelimit",
	})
	if err != nil {
		lg.Sugar().Warnw("failed to create checkout limiter, disabled", "error", err)
		return nil
	}
	lg.Sugar().Infow("checkout rate limit enabled",
		"algorithm", cfg.RateLimit.Algorithm, "rate", cfg.RateLimit.CheckoutRate, "burst", cfg.RateLimit.CheckoutBurst, "window", cfg.RateLimit.Window)
	return l
}

// initPublisher 连接 RabbitMQ 并声明拓扑；未启用或连接失败时事件只在本地丢弃
func initPublisher(ctx context.Context, cfg *config.Config, app *App, m *metrics.Metrics, lg *zap.Logger) (mq.EventPublisher, *mq.Config) {
	if !cfg.MQ.Enabled {
		lg.Sugar().Infow("message queue disabled")
		return mq.NopPublisher{}, nil
	}

	mqCfg := mq.FromAppConfig(cfg.MQ)
	if err := mqCfg.Validate(); err != nil {
		lg.Sugar().Warnw("invalid message queue config, events disabled", "error", err)
		return mq.NopPublisher{}, nil
	}

	cm := mq.NewConnectionManager(mqCfg, lg)
	connectCtx, cancel := context.WithTimeout(ctx, mqCfg.ConnectionTimeout)
	defer cancel()
	if err := cm.Connect(connectCtx); err != nil {
		lg.Sugar().Warnw("failed to connect to RabbitMQ, events disabled", "error", err)
		return mq.NopPublisher{}, nil
	}
	if err := cm.DeclareTopology(mqCfg.Topology); err != nil {
		lg.Sugar().Warnw("failed to declare RabbitMQ topology, events disabled", "error", err)
		_ = cm.Close()
		return mq.NopPublisher{}, nil
	}

	app.mqConn = cm
	app.producer = mq.NewProducer(cm, mqCfg.Producer, lg)
	return mq.NewAMQPPublisher(app.producer, mqCfg.Topology.Exchange, cfg.App.Name, m, lg), mqCfg
}

// startReconciler 启动台账对账消费者；未启用消费者时仅在重连后重新声明拓扑
func startReconciler(ctx context.Context, cfg *config.Config, app *App, mqCfg *mq.Config, ledger service.LedgerService, m *metrics.Metrics, lg *zap.Logger) {
	if app.mqConn == nil {
		return
	}
	if !cfg.MQ.ConsumerEnabled {
		app.mqConn.OnReconnected(func() {
			if err := app.mqConn.DeclareTopology(mqCfg.Topology); err != nil {
				lg.Error("failed to redeclare topology after reconnect", zap.Error(err))
			}
		})
		return
	}

	consumer, err := mq.StartReconcileConsumer(ctx, app.mqConn, mqCfg, ledger, m, lg)
	if err != nil {
		lg.Sugar().Errorw("failed to start ledger reconcile consumer", "error", err)
		return
	}
	app.consumer = consumer
	lg.Sugar().Infow("ledger reconcile consumer started", "queue", mqCfg.Topology.ReconcileQueue)
}

// initDependencies 初始化应用依赖（仓储、服务、处理器）
func initDependencies(ctx context.Context, cfg *config.Config, app *App, lg *zap.Logger) *router.Dependencies {
	m := metrics.New()
	clk := clock.NewSystem()

	// 仓储
	productRepo := repo.NewProductRepository(app.db.DB)
	stockRepo := repo.NewStockRepository(app.db.DB)
	alertRepo := repo.NewAlertRepository(app.db.DB)
	orderRepo := repo.NewOrderRepository(app.db.DB)
	counterRepo := repo.NewCounterRepository(app.db.DB)
	settingsRepo := repo.NewSettingsRepository(app.db.DB)

	// 商品读取走缓存，台账变更提交后失效
	var productCache repo.ProductCache = repo.NopProductCache{}
	if cfg.Cache.Enabled {
		cached := repo.NewCachedProductRepository(productRepo, app.cache, cfg.Cache.TTL, lg)
		productRepo = cached
		productCache = cached
	}

	// 幂等键需要共享存储，缓存关闭时退化为进程内存
	idemCache := app.cache
	if !cfg.Cache.Enabled {
		idemCache = cache.NewMemoryCache()
	}
	idempotency := cache.NewIdempotencyStore(idemCache, cfg.Idempotency.TTL)

	publisher, mqCfg := initPublisher(ctx, cfg, app, m, lg)

	// 服务
	alertService := service.NewAlertService(alertRepo, stockRepo, publisher, m, clk, lg)
	ledgerService := service.NewLedgerService(app.db, stockRepo, orderRepo, alertService, productCache, publisher, m, clk, lg)
	numbers := service.NewOrderNumberAllocator(counterRepo, cfg.Shop.OrderNumberPrefix, m, clk, lg)
	settingsService := service.NewSettingsService(settingsRepo, app.cache, cfg.Cache.TTL, cfg.Shop, clk, lg)
	orderService := service.NewOrderService(app.db, orderRepo, stockRepo, ledgerService, numbers, settingsService,
		idempotency, publisher, m, clk, lg)
	productService := service.NewProductService(productRepo, stockRepo, alertService, lg)
	jwtService := service.NewJWTService(cfg, lg)

	startReconciler(ctx, cfg, app, mqCfg, ledgerService, m, lg)

	checks := map[string]api.Pinger{"mysql": app.db}
	if cfg.Cache.Enabled {
		checks["cache"] = api.PingFunc(app.cache.Ping)
	}
	if app.mqConn != nil {
		checks["rabbitmq"] = app.mqConn
	}

	return &router.Dependencies{
		OrderHandler:     api.NewOrderHandler(orderService, lg),
		ProductHandler:   api.NewProductHandler(productService, lg),
		InventoryHandler: api.NewInventoryHandler(ledgerService, alertService, lg),
		SettingsHandler:  api.NewSettingsHandler(settingsService, lg),
		AuthHandler:      api.NewAuthHandler(jwtService, lg),
		HealthHandler:    api.NewHealthHandler(cfg.App.Version, checks, lg),
		JWTService:       jwtService,
		CheckoutLimiter:  initCheckoutLimiter(cfg, app.cache, lg),
		Metrics:          m,
	}
}

// setupRoutes 设置路由和中间件
func setupRoutes(cfg *config.Config, deps *router.Dependencies, lg *zap.Logger) http.Handler {
	return wrapMiddleware(cfg, router.New().Setup(cfg, deps, lg), lg)
}

// wrapMiddleware 构建中间件链：请求进入时执行顺序为 access log → CORS → timeout → recovery → request ID → tracing
// 响应返回时顺序相反
func wrapMiddleware(cfg *config.Config, h http.Handler, lg *zap.Logger) http.Handler {
	tracing.InstallPropagator()
	handler := mw.Tracing(h)
	handler = mw.RequestID(handler)
	handler = mw.Recovery(lg)(handler)
	handler = mw.Timeout(cfg.App.RequestTimeout)(handler)
	handler = mw.CORS(mw.CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	})(handler)
	handler = mw.AccessLog(lg)(handler)

	return handler
}

// startServer 启动服务器并处理优雅关闭
func startServer(cfg *config.Config, handler http.Handler, lg *zap.Logger) {
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	lg.Sugar().Infow("server starting", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Sugar().Errorw("server error", "err", err)
			return
		}
	case <-quit:
		lg.Sugar().Infow("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Sugar().Errorw("server shutdown error", "err", err)
	}
	lg.Sugar().Infow("server exited")
}

// Close 按依赖反序释放资源
func (a *App) Close(lg *zap.Logger) {
	if a.mqConn != nil {
		fields := []any{"connection", a.mqConn.GetStats()}
		if a.producer != nil {
			fields = append(fields, "producer", a.producer.GetStats())
		}
		if a.consumer != nil {
			fields = append(fields, "consumer", a.consumer.GetStats())
		}
		lg.Sugar().Infow("rabbitmq stats at shutdown", fields...)
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			lg.Sugar().Errorw("failed to close consumer", "err", err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			lg.Sugar().Errorw("failed to close producer", "err", err)
		}
	}
	if a.mqConn != nil {
		if err := a.mqConn.Close(); err != nil {
			lg.Sugar().Errorw("failed to close RabbitMQ connection", "err", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			lg.Sugar().Errorw("failed to close cache", "err", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			lg.Sugar().Errorw("failed to close database connection", "err", err)
		}
	}
}

// main 为应用入口，协调各个组件的初始化和启动
func main() {
	// 1) 加载配置和初始化日志
	cfg, lg, err := initConfigAndLogger()
	if err != nil {
		log.Fatalf("failed to initialize config and logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2) 初始化数据库连接并执行迁移
	db, err := initDatabase(cfg, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to initialize database", "err", err)
	}
	app := &App{db: db}
	defer app.Close(lg)

	// 3) 初始化缓存
	app.cache = initCache(cfg, lg)

	// 4) 初始化应用依赖（仓储、服务、消息、处理器）
	deps := initDependencies(ctx, cfg, app, lg)

	// 5) 设置路由和中间件
	handler := setupRoutes(cfg, deps, lg)

	// 6) 启动 HTTP 服务器
	startServer(cfg, handler, lg)
}
