package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MorseWayne/apparel_shop/internal/pricing"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusReturnRequested OrderStatus = "return_requested"
	OrderStatusRefunded        OrderStatus = "refunded"
)

// orderTransitions 订单状态机，未列出的迁移一律拒绝
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:      {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:         {OrderStatusDelivered},
	OrderStatusDelivered:       {OrderStatusReturnRequested},
	OrderStatusReturnRequested: {OrderStatusRefunded},
}

// IsValid 是否为已知状态
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusReturnRequested, OrderStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo 判断状态迁移是否被状态机允许
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReleasesStock 进入该状态时应回补已扣减的库存
func (s OrderStatus) ReleasesStock() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// PaymentStatus 支付状态（支付由外部网关完成，这里只记录）
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// IsValid 校验支付状态
func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// ShippingAddress 收货地址，按 JSON 存储
type ShippingAddress struct {
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

// Value 实现 driver.Valuer
func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan 实现 sql.Scanner
func (a *ShippingAddress) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = ShippingAddress{}
		return nil
	}
	return errors.New("unsupported shipping address column type")
}

// Order 订单聚合根，拥有其行项目快照
type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   *string         `json:"customer_phone,omitempty"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	Tax             decimal.Decimal `json:"tax"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"status"`
	PaymentMethod   *string         `json:"payment_method,omitempty"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Notes           *string         `json:"notes,omitempty"`
	TrackingNumber  *string         `json:"tracking_number,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	Items           []OrderItem     `json:"items"`
}

// ApplyStatus 迁移到新状态并打上对应时间戳，调用方需先校验迁移合法
func (o *Order) ApplyStatus(next OrderStatus, now time.Time) {
	o.Status = next
	o.UpdatedAt = now
	switch next {
	case OrderStatusCancelled:
		o.CancelledAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	case OrderStatusRefunded:
		o.PaymentStatus = PaymentStatusRefunded
	}
}

// ProductQuantities 按商品汇总数量（同一商品不同尺码/颜色合并）
func (o *Order) ProductQuantities() map[int64]int {
	out := make(map[int64]int, len(o.Items))
	for _, it := range o.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

// OrderItem 下单时的行项目快照，不随商品后续修改而变化
type OrderItem struct {
	ID           int64           `json:"id"`
	OrderID      string          `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	ProductSKU   string          `json:"product_sku"`
	Size         string          `json:"size"`
	Color        string          `json:"color"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// NewOrderItem 由商品当前数据生成行快照
func NewOrderItem(p *Product, size, color string, quantity int) OrderItem {
	return OrderItem{
		ProductID:    p.ID,
		ProductName:  p.Name,
		ProductImage: p.ImageURL,
		ProductSKU:   p.SKU,
		Size:         size,
		Color:        color,
		Quantity:     quantity,
		UnitPrice:    p.Price,
		LineTotal:    pricing.LineTotal(p.Price, quantity),
	}
}

// CreateOrderItem 下单请求中的一行
type CreateOrderItem struct {
	ProductID int64  `json:"product_id" binding:"required,gt=0"`
	Quantity  int    `json:"quantity" binding:"required,gt=0,lte=1000"`
	Size      string `json:"size" binding:"max=32"`
	Color     string `json:"color" binding:"max=32"`
}

// CreateOrderRequest 结账请求
type CreateOrderRequest struct {
	CustomerEmail   string            `json:"customer_email" binding:"required,email"`
	CustomerName    string            `json:"customer_name" binding:"required,min=1,max=255"`
	CustomerPhone   *string           `json:"customer_phone"`
	ShippingAddress ShippingAddress   `json:"shipping_address"`
	Items           []CreateOrderItem `json:"items" binding:"required,min=1,dive"`
	PaymentMethod   *string           `json:"payment_method"`
	Discount        decimal.Decimal   `json:"discount"`
	Notes           *string           `json:"notes"`
}

// UpdateOrderRequest 局部更新，只写入提供的字段
type UpdateOrderRequest struct {
	TrackingNumber *string        `json:"tracking_number"`
	Notes          *string        `json:"notes"`
	PaymentStatus  *PaymentStatus `json:"payment_status"`
	PaymentMethod  *string        `json:"payment_method"`
}

// IsEmpty 是否没有任何字段
func (r *UpdateOrderRequest) IsEmpty() bool {
	return r.TrackingNumber == nil && r.Notes == nil && r.PaymentStatus == nil && r.PaymentMethod == nil
}

// UpdateStatusRequest 状态迁移请求
type UpdateStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required"`
}

// AddTrackingRequest 添加物流单号
type AddTrackingRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"required,min=1,max=128"`
}

// OrderListRequest 订单列表查询
type OrderListRequest struct {
	Status *OrderStatus `json:"status"`
	Search string       `json:"search"`
	Limit  int          `json:"limit"`
}

// OrderStats 订单统计；TotalRevenue 汇总全部订单（含已取消、已退款）
type OrderStats struct {
	TotalOrders  int64           `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	Pending      int64           `json:"pending"`
	Processing   int64           `json:"processing"`
	Shipped      int64           `json:"shipped"`
	Delivered    int64           `json:"delivered"`
}

// RevenueSummary 看板收入，不含已取消、已退款订单
type RevenueSummary struct {
	Revenue          decimal.Decimal `json:"revenue"`
	OrderCount       int64           `json:"order_count"`
	ExcludedStatuses []OrderStatus   `json:"excluded_statuses"`
}

// RevenueExcludedStatuses 看板收入排除的状态
var RevenueExcludedStatuses = []OrderStatus{OrderStatusCancelled, OrderStatusRefunded}
