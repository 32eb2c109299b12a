package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/service"
)

// InventoryHandler 库存台账与告警的HTTP处理器
type InventoryHandler struct {
	ledger service.LedgerService
	alerts service.AlertService
	logger *zap.Logger
}

// NewInventoryHandler 创建库存处理器实例
func NewInventoryHandler(ledger service.LedgerService, alerts service.AlertService, logger *zap.Logger) *InventoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryHandler{
		ledger: ledger,
		alerts: alerts,
		logger: logger,
	}
}

// GetStatus 库存汇总
// GET /api/v1/admin/inventory/status
func (h *InventoryHandler) GetStatus(c *gin.Context) {
	status, err := h.ledger.GetStatus(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, status)
}

// SetQuantity 按绝对值设置库存
// PUT /api/v1/admin/inventory/:product_id
func (h *InventoryHandler) SetQuantity(c *gin.Context) {
	productID, valid := parseID(c, "product_id")
	if !valid {
		return
	}
	var req domain.SetQuantityRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	change, err := h.ledger.SetQuantity(c.Request.Context(), productID, *req.Quantity, req.Note, currentActor(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, change)
}

// AdjustQuantity 相对调整库存，结果低于零时截断为零
// POST /api/v1/admin/inventory/:product_id/adjust
func (h *InventoryHandler) AdjustQuantity(c *gin.Context) {
	productID, valid := parseID(c, "product_id")
	if !valid {
		return
	}
	var req domain.AdjustQuantityRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	change, err := h.ledger.AdjustQuantity(c.Request.Context(), productID, *req.Delta, req.Note, currentActor(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, change)
}

// Restock 补货
// POST /api/v1/admin/inventory/:product_id/restock
func (h *InventoryHandler) Restock(c *gin.Context) {
	productID, valid := parseID(c, "product_id")
	if !valid {
		return
	}
	var req domain.RestockRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	change, err := h.ledger.Restock(c.Request.Context(), productID, req.Quantity, req.Note, currentActor(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, change)
}

// GetHistory 库存流水，最新的在前
// GET /api/v1/admin/inventory/:product_id/history?limit=50
func (h *InventoryHandler) GetHistory(c *gin.Context) {
	productID, valid := parseID(c, "product_id")
	if !valid {
		return
	}

	entries, err := h.ledger.History(c.Request.Context(), productID, queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, entries)
}

// CheckAvailability 查询商品能否满足请求数量
// GET /api/v1/products/:id/availability?quantity=1
func (h *InventoryHandler) CheckAvailability(c *gin.Context) {
	productID, valid := parseID(c, "id")
	if !valid {
		return
	}
	requested := queryInt(c, "quantity", 1)
	if requested <= 0 {
		badRequest(c, "quantity must be positive")
		return
	}

	result, err := h.ledger.CheckAvailability(c.Request.Context(), productID, requested)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, result)
}

// ValidateCart 校验购物车，返回全部问题行
// POST /api/v1/cart/validate
func (h *InventoryHandler) ValidateCart(c *gin.Context) {
	var req domain.ValidateCartRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	result, err := h.ledger.ValidateCart(c.Request.Context(), req.Items)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, result)
}

// ListAlerts 未解决告警，附带商品当前信息
// GET /api/v1/admin/inventory/alerts
func (h *InventoryHandler) ListAlerts(c *gin.Context) {
	alerts, err := h.alerts.ListOpen(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, alerts)
}

// CreateAlert 手工创建告警，已有同类型未解决告警时返回该告警
// POST /api/v1/admin/inventory/alerts
func (h *InventoryHandler) CreateAlert(c *gin.Context) {
	var req domain.CreateAlertRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	alert, err := h.alerts.Create(c.Request.Context(), req.ProductID, req.AlertType, req.Note)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, alert)
}

// ResolveAlert 解决告警
// POST /api/v1/admin/inventory/alerts/:id/resolve
func (h *InventoryHandler) ResolveAlert(c *gin.Context) {
	var req domain.ResolveAlertRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, h.logger, &req) {
		return
	}

	alert, err := h.alerts.Resolve(c.Request.Context(), c.Param("id"), req.Note, currentActor(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, alert)
}
