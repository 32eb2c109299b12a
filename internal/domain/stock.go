package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StockLevel 派生的库存等级
type StockLevel string

const (
	StockLevelInStock    StockLevel = "in_stock"
	StockLevelLowStock   StockLevel = "low_stock"
	StockLevelOutOfStock StockLevel = "out_of_stock"
)

// EvaluateStockLevel 阈值策略：0 为缺货；0 < q <= alertLevel 为低库存；其余为有货
func EvaluateStockLevel(quantity, alertLevel int) StockLevel {
	switch {
	case quantity <= 0:
		return StockLevelOutOfStock
	case quantity <= alertLevel:
		return StockLevelLowStock
	default:
		return StockLevelInStock
	}
}

// ChangeType 库存变动类型
type ChangeType string

const (
	ChangeTypePurchase   ChangeType = "purchase"   // 下单扣减
	ChangeTypeReturn     ChangeType = "return"     // 取消/退款回补
	ChangeTypeAdjustment ChangeType = "adjustment" // 人工调整
	ChangeTypeRestock    ChangeType = "restock"    // 补货
)

// StockHistoryEntry 不可变的库存流水，NewQuantity - PreviousQuantity == Delta
type StockHistoryEntry struct {
	ID               string     `json:"id"`
	ProductID        int64      `json:"product_id"`
	PreviousQuantity int        `json:"previous_quantity"`
	NewQuantity      int        `json:"new_quantity"`
	Delta            int        `json:"delta"`
	ChangeType       ChangeType `json:"change_type"`
	RelatedOrderID   *string    `json:"related_order_id,omitempty"`
	Note             string     `json:"note"`
	Actor            *string    `json:"actor,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// MutationMode 台账变更方式
type MutationMode int

const (
	MutationSet   MutationMode = iota // 绝对值覆盖
	MutationDelta                     // 相对增减（结果下限为 0）
)

// StockMutation 描述一次台账变更，由仓储在行锁内计算新数量
type StockMutation struct {
	ProductID      int64
	Mode           MutationMode
	Value          int
	ChangeType     ChangeType
	RelatedOrderID *string
	Note           string
	Actor          *string
}

// Apply 根据当前数量计算新数量与实际生效的增量
func (m StockMutation) Apply(previous int) (newQuantity, applied int) {
	switch m.Mode {
	case MutationSet:
		newQuantity = m.Value
	default:
		newQuantity = previous + m.Value
	}
	if newQuantity < 0 {
		newQuantity = 0
	}
	return newQuantity, newQuantity - previous
}

// Clamped 报告增量是否因下限 0 被截断
func (m StockMutation) Clamped(previous int) bool {
	if m.Mode != MutationDelta {
		return false
	}
	return previous+m.Value < 0
}

// StockChange 一次台账变更的结果
type StockChange struct {
	Product *Product           `json:"product"`
	Entry   *StockHistoryEntry `json:"entry"`
}

// Availability 可售检查结果
type Availability struct {
	ProductID    int64  `json:"product_id"`
	Available    bool   `json:"available"`
	CurrentStock int    `json:"current_stock"` // -1 表示不限量
	Requested    int    `json:"requested"`
	Message      string `json:"message,omitempty"`
}

// UnlimitedStock 不跟踪库存商品的 current_stock 哨兵值
const UnlimitedStock = -1

// CartItem 购物车行
type CartItem struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

// CartIssue 购物车校验问题
type CartIssue struct {
	ProductID    int64  `json:"product_id"`
	Message      string `json:"message"`
	CurrentStock int    `json:"current_stock"`
	Requested    int    `json:"requested"`
}

// CartValidation 购物车校验结果，汇总所有问题而不是遇到第一个就停止
type CartValidation struct {
	Valid  bool        `json:"valid"`
	Errors []CartIssue `json:"errors"`
}

// ValidateCartRequest 购物车校验请求
type ValidateCartRequest struct {
	Items []CartItem `json:"items" binding:"required,min=1,dive"`
}

// StockStatus 全部商品的库存汇总
type StockStatus struct {
	TotalProducts       int64           `json:"total_products"`
	InStock             int64           `json:"in_stock"`
	LowStock            int64           `json:"low_stock"`
	OutOfStock          int64           `json:"out_of_stock"`
	TotalInventoryValue decimal.Decimal `json:"total_inventory_value"`
	OpenAlertCount      int64           `json:"open_alert_count"`
}

// SetQuantityRequest 绝对值设置库存
type SetQuantityRequest struct {
	Quantity *int   `json:"quantity" binding:"required,min=0"`
	Note     string `json:"note" binding:"max=500"`
}

// AdjustQuantityRequest 相对调整库存
type AdjustQuantityRequest struct {
	Delta *int   `json:"delta" binding:"required"`
	Note  string `json:"note" binding:"max=500"`
}

// RestockRequest 补货
type RestockRequest struct {
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Note     string `json:"note" binding:"max=500"`
}

// ClampNote 截断时在备注中保留请求的增量
func ClampNote(note string, requested int) string {
	suffix := fmt.Sprintf("requested delta %d clamped at zero", requested)
	if note == "" {
		return suffix
	}
	return note + " (" + suffix + ")"
}
