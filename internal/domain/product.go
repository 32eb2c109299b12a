// Package domain 定义商品、库存台账、告警与订单的领域模型和核心业务规则。
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus 定义商品状态类型
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"   // 正常销售
	ProductStatusInactive ProductStatus = "inactive" // 暂停销售
	ProductStatusDeleted  ProductStatus = "deleted"  // 已删除
)

// Product 表示商品领域模型（由外部商品目录维护，本服务只读其价格并维护库存数量）
type Product struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	SKU            string          `json:"sku"`
	ImageURL       string          `json:"image_url"`
	Status         ProductStatus   `json:"status"`
	Quantity       int             `json:"quantity"`        // 当前在库数量，永不为负
	AlertLevel     int             `json:"alert_level"`     // 低库存阈值
	TrackInventory bool            `json:"track_inventory"` // 是否跟踪库存
	AllowBackorder bool            `json:"allow_backorder"` // 是否允许缺货下单
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsAvailable 判断商品是否可售
func (p *Product) IsAvailable() bool {
	return p.Status == ProductStatusActive
}

// StockLevel 返回商品当前的库存等级，不跟踪库存的商品始终视为有货
func (p *Product) StockLevel() StockLevel {
	if !p.TrackInventory {
		return StockLevelInStock
	}
	return EvaluateStockLevel(p.Quantity, p.AlertLevel)
}

// InventoryValue 当前库存货值 = 单价 * 数量
func (p *Product) InventoryValue() decimal.Decimal {
	if !p.TrackInventory || p.Quantity <= 0 {
		return decimal.Zero
	}
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// CreateProductRequest 表示创建商品请求
type CreateProductRequest struct {
	Name           string          `json:"name" binding:"required,min=1,max=255"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	SKU            string          `json:"sku" binding:"required,min=1,max=100"`
	ImageURL       string          `json:"image_url"`
	AlertLevel     int             `json:"alert_level" binding:"min=0"`
	TrackInventory *bool           `json:"track_inventory"`
	AllowBackorder bool            `json:"allow_backorder"`
}

// UpdateProductRequest 表示更新商品请求，库存数量只能通过库存台账修改
type UpdateProductRequest struct {
	Name           *string          `json:"name"`
	Description    *string          `json:"description"`
	Price          *decimal.Decimal `json:"price"`
	ImageURL       *string          `json:"image_url"`
	Status         *ProductStatus   `json:"status"`
	AlertLevel     *int             `json:"alert_level"`
	TrackInventory *bool            `json:"track_inventory"`
	AllowBackorder *bool            `json:"allow_backorder"`
}

// ProductListRequest 表示商品列表查询请求
type ProductListRequest struct {
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Status   *ProductStatus `json:"status"`
	Keyword  string         `json:"keyword"`
}

// ProductListResponse 表示商品列表查询响应
type ProductListResponse struct {
	Products []*Product `json:"products"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}
