// Package router 提供 HTTP 路由设置和中间件配置功能
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/api"
	"github.com/MorseWayne/apparel_shop/internal/config"
	"github.com/MorseWayne/apparel_shop/internal/limiter"
	"github.com/MorseWayne/apparel_shop/internal/metrics"
	"github.com/MorseWayne/apparel_shop/internal/middleware"
	"github.com/MorseWayne/apparel_shop/internal/service"
)

// Dependencies 包含路由设置所需的所有依赖
type Dependencies struct {
	OrderHandler     *api.OrderHandler
	ProductHandler   *api.ProductHandler
	InventoryHandler *api.InventoryHandler
	SettingsHandler  *api.SettingsHandler
	AuthHandler      *api.AuthHandler
	HealthHandler    *api.HealthHandler
	JWTService       service.JWTService

	// CheckoutLimiter 为 nil 时下单接口不限流
	CheckoutLimiter limiter.Limiter
	Metrics         *metrics.Metrics
}

// Router 路由器接口
type Router interface {
	Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler
}

// GinRouter Gin路由器实现
type GinRouter struct {
	engine *gin.Engine
	cfg    *config.Config
	deps   *Dependencies
	logger *zap.Logger
}

// New 创建新的路由器实例
func New() Router {
	return &GinRouter{}
}

// Setup 设置路由和中间件。
// 请求 ID、恢复、超时、CORS 与访问日志由外层 net/http 中间件链负责
func (r *GinRouter) Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler {
	// 根据环境设置 Gin 模式
	switch cfg.App.Env {
	case "prod":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r.engine = gin.New()
	r.cfg = cfg
	r.deps = deps
	r.logger = lg

	if cfg.Metrics.Enabled && deps.Metrics != nil {
		r.engine.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	r.setupRoutes()

	return r.engine
}

// setupRoutes 设置所有路由
func (r *GinRouter) setupRoutes() {
	d := r.deps

	r.engine.GET("/healthz", d.HealthHandler.Healthz)
	r.engine.GET("/readyz", d.HealthHandler.Readyz)
	if r.cfg.Metrics.Enabled && d.Metrics != nil {
		r.engine.GET(r.cfg.Metrics.Path, gin.WrapH(d.Metrics.Handler()))
	}

	// API v1 路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 认证路由（无需认证）
		v1.POST("/auth/refresh", d.AuthHandler.RefreshToken)

		// 商品与可售查询（公开）
		products := v1.Group("/products")
		{
			products.GET("", d.ProductHandler.ListProducts)
			products.GET("/:id", d.ProductHandler.GetProduct)
			products.GET("/:id/availability", d.InventoryHandler.CheckAvailability)
		}

		v1.POST("/cart/validate", d.InventoryHandler.ValidateCart)

		// 结账与订单查询（公开，登录用户按用户限流）
		orders := v1.Group("/orders")
		orders.Use(middleware.Gin(middleware.OptionalAuth(d.JWTService, r.logger)))
		{
			orders.POST("", r.checkoutHandlers(d.OrderHandler.CreateOrder)...)
			orders.GET("/:id", d.OrderHandler.GetOrder)
		}

		// 后台路由（需要认证）
		admin := v1.Group("/admin")
		admin.Use(r.authMiddleware())
		{
			// 订单处理：管理员与店员
			adminOrders := admin.Group("/orders", r.staffMiddleware())
			{
				adminOrders.GET("", d.OrderHandler.ListOrders)
				adminOrders.GET("/stats", d.OrderHandler.GetStats)
				adminOrders.GET("/:id", d.OrderHandler.GetOrder)
				adminOrders.PUT("/:id/status", d.OrderHandler.UpdateStatus)
				adminOrders.PATCH("/:id", d.OrderHandler.UpdateOrder)
				adminOrders.POST("/:id/tracking", d.OrderHandler.AddTracking)
				adminOrders.DELETE("/:id", d.OrderHandler.DeleteOrder)
			}

			// 库存台账与告警：管理员与店员
			adminInventory := admin.Group("/inventory", r.staffMiddleware())
			{
				adminInventory.GET("/status", d.InventoryHandler.GetStatus)
				adminInventory.GET("/alerts", d.InventoryHandler.ListAlerts)
				adminInventory.POST("/alerts", d.InventoryHandler.CreateAlert)
				adminInventory.POST("/alerts/:id/resolve", d.InventoryHandler.ResolveAlert)
				adminInventory.PUT("/:product_id", d.InventoryHandler.SetQuantity)
				adminInventory.POST("/:product_id/adjust", d.InventoryHandler.AdjustQuantity)
				adminInventory.POST("/:product_id/restock", d.InventoryHandler.Restock)
				adminInventory.GET("/:product_id/history", d.InventoryHandler.GetHistory)
			}

			// 看板、商品与店铺配置：仅管理员
			adminOnly := admin.Group("", r.adminMiddleware())
			{
				adminOnly.GET("/dashboard/revenue", d.OrderHandler.GetDashboardRevenue)
				adminOnly.POST("/products", d.ProductHandler.CreateProduct)
				adminOnly.PUT("/products/:id", d.ProductHandler.UpdateProduct)
				adminOnly.GET("/settings", d.SettingsHandler.GetSettings)
				adminOnly.PUT("/settings", d.SettingsHandler.UpdateSettings)
			}
		}
	}
}

// checkoutHandlers 下单处理链：限流（可选）→ 幂等键 → 处理器
func (r *GinRouter) checkoutHandlers(h gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, 3)
	if r.cfg.RateLimit.Enabled && r.deps.CheckoutLimiter != nil {
		handlers = append(handlers, limiter.CheckoutRateLimitMiddleware(r.deps.CheckoutLimiter, r.logger, r.deps.Metrics))
	}
	return append(handlers, middleware.IdempotencyMiddleware(), h)
}

// authMiddleware 认证中间件
func (r *GinRouter) authMiddleware() gin.HandlerFunc {
	return middleware.Gin(middleware.AuthMiddleware(r.deps.JWTService, r.logger))
}

// staffMiddleware 管理员与店员
func (r *GinRouter) staffMiddleware() gin.HandlerFunc {
	return middleware.Gin(middleware.RequireStaff(r.logger))
}

// adminMiddleware 管理员权限中间件
func (r *GinRouter) adminMiddleware() gin.HandlerFunc {
	return middleware.Gin(middleware.RequireAdmin(r.logger))
}
