package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/middleware"
	"github.com/MorseWayne/apparel_shop/internal/resp"
	"github.com/MorseWayne/apparel_shop/internal/service"
)

// HeaderIdempotentReplayed 幂等重放时的响应头
const HeaderIdempotentReplayed = "Idempotent-Replayed"

// OrderHandler 订单API处理器
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler 创建订单API处理器
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// CreateOrder 结账下单
// @Summary 结账下单
// @Description 按商品当前价格计算金额并生成订单号；携带 X-Idempotency-Key 的重复请求返回首次创建的订单
// @Tags 订单
// @Accept json
// @Produce json
// @Param request body domain.CreateOrderRequest true "下单请求"
// @Success 201 {object} resp.Response[domain.Order] "创建成功"
// @Success 200 {object} resp.Response[domain.Order] "幂等重放"
// @Failure 400 {object} resp.Response[any] "请求参数错误"
// @Failure 409 {object} resp.Response[any] "库存不足"
// @Failure 429 {object} resp.Response[any] "请求过于频繁"
// @Router /api/v1/orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req domain.CreateOrderRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	order, replayed, err := h.orderService.Create(c.Request.Context(), &req, middleware.IdempotencyKey(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if replayed {
		c.Header(HeaderIdempotentReplayed, "true")
		ok(c, order)
		return
	}
	created(c, order)
}

// GetOrder 按订单ID或订单号查询
// @Summary 查询订单
// @Tags 订单
// @Produce json
// @Param id path string true "订单ID或订单号"
// @Success 200 {object} resp.Response[domain.Order] "成功"
// @Failure 404 {object} resp.Response[any] "订单不存在"
// @Router /api/v1/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, order)
}

// ListOrders 订单列表
// @Summary 订单列表
// @Tags 订单管理
// @Produce json
// @Param status query string false "订单状态"
// @Param search query string false "订单号/邮箱/姓名关键字"
// @Param limit query int false "返回条数"
// @Success 200 {object} resp.Response[[]domain.Order] "成功"
// @Router /api/v1/admin/orders [get]
// @Security Bearer
func (h *OrderHandler) ListOrders(c *gin.Context) {
	req := &domain.OrderListRequest{
		Search: c.Query("search"),
		Limit:  queryInt(c, "limit", 0),
	}
	if s := c.Query("status"); s != "" {
		status := domain.OrderStatus(s)
		req.Status = &status
	}

	orders, err := h.orderService.List(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, orders)
}

// UpdateStatus 订单状态迁移
// @Summary 修改订单状态
// @Description 只允许状态机中的迁移，取消和退款会回补库存
// @Tags 订单管理
// @Accept json
// @Produce json
// @Param id path string true "订单ID"
// @Param request body domain.UpdateStatusRequest true "目标状态"
// @Success 200 {object} resp.Response[domain.Order] "成功"
// @Failure 409 {object} resp.Response[any] "非法状态迁移"
// @Router /api/v1/admin/orders/{id}/status [put]
// @Security Bearer
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req domain.UpdateStatusRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, currentActor(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, order)
}

// UpdateOrder 局部更新订单（物流单号、备注、支付信息）
// @Router /api/v1/admin/orders/{id} [patch]
// @Security Bearer
func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	var req domain.UpdateOrderRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	order, err := h.orderService.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, order)
}

// AddTracking 添加物流单号并发货
// @Router /api/v1/admin/orders/{id}/tracking [post]
// @Security Bearer
func (h *OrderHandler) AddTracking(c *gin.Context) {
	var req domain.AddTrackingRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	order, err := h.orderService.AddTracking(c.Request.Context(), c.Param("id"), req.TrackingNumber, currentActor(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, order)
}

// DeleteOrder 取消订单，订单记录不会被物理删除
// @Router /api/v1/admin/orders/{id} [delete]
// @Security Bearer
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	order, err := h.orderService.Delete(c.Request.Context(), c.Param("id"), currentActor(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, order)
}

// GetStats 订单统计
// total_revenue 汇总全部订单，包括已取消和已退款的订单
// @Router /api/v1/admin/orders/stats [get]
// @Security Bearer
func (h *OrderHandler) GetStats(c *gin.Context) {
	stats, err := h.orderService.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, stats)
}

// GetDashboardRevenue 看板收入
// 与 GetStats 不同，这里排除已取消和已退款的订单
// @Router /api/v1/admin/dashboard/revenue [get]
// @Security Bearer
func (h *OrderHandler) GetDashboardRevenue(c *gin.Context) {
	summary, err := h.orderService.DashboardRevenue(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.WriteJSON(c.Writer, http.StatusOK, resp.CodeOK, "success", summary, requestID(c), traceID(c))
}
