package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/service"
)

// ProductHandler 商品相关的HTTP处理器
type ProductHandler struct {
	productService service.ProductService
	logger         *zap.Logger
}

// NewProductHandler 创建商品处理器实例
func NewProductHandler(productService service.ProductService, logger *zap.Logger) *ProductHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// CreateProduct 创建商品
// POST /api/v1/admin/products
// 需要管理员权限；初始库存为0，通过库存台账补货
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req domain.CreateProductRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	product, err := h.productService.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	created(c, product)
}

// GetProduct 获取商品详情
// GET /api/v1/products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, valid := parseID(c, "id")
	if !valid {
		return
	}

	product, err := h.productService.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, product)
}

// UpdateProduct 更新商品信息
// PUT /api/v1/admin/products/:id
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, valid := parseID(c, "id")
	if !valid {
		return
	}
	var req domain.UpdateProductRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	product, err := h.productService.Update(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, product)
}

// ListProducts 获取商品列表
// GET /api/v1/products?page=1&page_size=20&status=active&keyword=shirt
func (h *ProductHandler) ListProducts(c *gin.Context) {
	req := &domain.ProductListRequest{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
		Keyword:  c.Query("keyword"),
	}
	if status := c.Query("status"); status != "" {
		productStatus := domain.ProductStatus(status)
		req.Status = &productStatus
	}

	result, err := h.productService.List(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, result)
}
