package domain

import "time"

// AlertType 库存告警类型
type AlertType string

const (
	AlertTypeLowStock      AlertType = "low_stock"
	AlertTypeOutOfStock    AlertType = "out_of_stock"
	AlertTypeRestockNeeded AlertType = "restock_needed"
)

// IsValid 校验告警类型
func (t AlertType) IsValid() bool {
	switch t {
	case AlertTypeLowStock, AlertTypeOutOfStock, AlertTypeRestockNeeded:
		return true
	}
	return false
}

// AlertTypeForLevel 库存等级对应的自动告警类型，有货时返回空
func AlertTypeForLevel(level StockLevel) AlertType {
	switch level {
	case StockLevelOutOfStock:
		return AlertTypeOutOfStock
	case StockLevelLowStock:
		return AlertTypeLowStock
	}
	return ""
}

// StockAlert 库存告警，同一商品同一类型最多一条未解决告警
type StockAlert struct {
	ID              string     `json:"id"`
	ProductID       int64      `json:"product_id"`
	AlertType       AlertType  `json:"alert_type"`
	QuantityAtAlert int        `json:"quantity_at_alert"`
	IsResolved      bool       `json:"is_resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	Note            string     `json:"note"`
	CreatedAt       time.Time  `json:"created_at"`
}

// AlertWithProduct 告警及其商品的当前快照
type AlertWithProduct struct {
	*StockAlert
	Product *Product `json:"product"`
}

// CreateAlertRequest 手工创建告警
type CreateAlertRequest struct {
	ProductID int64     `json:"product_id" binding:"required,gt=0"`
	AlertType AlertType `json:"alert_type" binding:"required,oneof=low_stock out_of_stock restock_needed"`
	Note      string    `json:"note" binding:"max=500"`
}

// ResolveAlertRequest 解决告警
type ResolveAlertRequest struct {
	Note string `json:"note" binding:"max=500"`
}
