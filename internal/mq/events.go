package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MorseWayne/apparel_shop/internal/domain"
)

// 领域事件类型，同时作为 topic 交换机的路由键
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventStockChanged       = "stock.changed"
	EventAlertOpened        = "stock.alert.opened"
	EventAlertResolved      = "stock.alert.resolved"
)

// Event 事件信封
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEvent 封装负载
func NewEvent(eventType string, payload any, now time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: now.UTC(),
		Data:       data,
	}, nil
}

// Decode 解析负载
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// OrderCreated order.created 负载
type OrderCreated struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
	Items       map[int64]int   `json:"items"` // product_id -> quantity
}

// OrderStatusChanged order.status_changed 负载
type OrderStatusChanged struct {
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	From        domain.OrderStatus `json:"from"`
	To          domain.OrderStatus `json:"to"`
	Actor       *string            `json:"actor,omitempty"`
}

// StockChanged stock.changed 负载
type StockChanged struct {
	ProductID        int64             `json:"product_id"`
	PreviousQuantity int               `json:"previous_quantity"`
	NewQuantity      int               `json:"new_quantity"`
	Delta            int               `json:"delta"`
	ChangeType       domain.ChangeType `json:"change_type"`
	RelatedOrderID   *string           `json:"related_order_id,omitempty"`
	Level            domain.StockLevel `json:"level"`
}

// StockChangedFromEntry 由台账流水构造
func StockChangedFromEntry(e *domain.StockHistoryEntry, level domain.StockLevel) StockChanged {
	return StockChanged{
		ProductID:        e.ProductID,
		PreviousQuantity: e.PreviousQuantity,
		NewQuantity:      e.NewQuantity,
		Delta:            e.Delta,
		ChangeType:       e.ChangeType,
		RelatedOrderID:   e.RelatedOrderID,
		Level:            level,
	}
}

// AlertChanged stock.alert.opened / stock.alert.resolved 负载
type AlertChanged struct {
	AlertID         string           `json:"alert_id"`
	ProductID       int64            `json:"product_id"`
	AlertType       domain.AlertType `json:"alert_type"`
	QuantityAtAlert int              `json:"quantity_at_alert"`
	ResolvedBy      *string          `json:"resolved_by,omitempty"`
}

// AlertChangedFrom 由告警构造
func AlertChangedFrom(a *domain.StockAlert) AlertChanged {
	return AlertChanged{
		AlertID:         a.ID,
		ProductID:       a.ProductID,
		AlertType:       a.AlertType,
		QuantityAtAlert: a.QuantityAtAlert,
		ResolvedBy:      a.ResolvedBy,
	}
}
