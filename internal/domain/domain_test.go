package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:         {OrderStatusProcessing, OrderStatusCancelled},
		OrderStatusProcessing:      {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:         {OrderStatusDelivered},
		OrderStatusDelivered:       {OrderStatusReturnRequested},
		OrderStatusReturnRequested: {OrderStatusRefunded},
	}
	all := []OrderStatus{
		OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusReturnRequested, OrderStatusRefunded,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrder_ApplyStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	o := &Order{Status: OrderStatusShipped}
	o.ApplyStatus(OrderStatusDelivered, now)
	assert.Equal(t, OrderStatusDelivered, o.Status)
	if assert.NotNil(t, o.DeliveredAt) {
		assert.Equal(t, now, *o.DeliveredAt)
	}
	assert.Nil(t, o.CancelledAt)

	o = &Order{Status: OrderStatusPending}
	o.ApplyStatus(OrderStatusCancelled, now)
	assert.NotNil(t, o.CancelledAt)
	assert.Equal(t, now, o.UpdatedAt)

	o = &Order{Status: OrderStatusReturnRequested, PaymentStatus: PaymentStatusPaid}
	o.ApplyStatus(OrderStatusRefunded, now)
	assert.Equal(t, PaymentStatusRefunded, o.PaymentStatus)
}

func TestEvaluateStockLevel(t *testing.T) {
	tests := []struct {
		qty, level int
		want       StockLevel
	}{
		{0, 5, StockLevelOutOfStock},
		{1, 5, StockLevelLowStock},
		{5, 5, StockLevelLowStock},
		{6, 5, StockLevelInStock},
		{3, 0, StockLevelInStock},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EvaluateStockLevel(tt.qty, tt.level), "qty=%d level=%d", tt.qty, tt.level)
	}

	untracked := &Product{Quantity: 0, AlertLevel: 5, TrackInventory: false}
	assert.Equal(t, StockLevelInStock, untracked.StockLevel())
}

func TestStockMutation_Apply(t *testing.T) {
	m := StockMutation{Mode: MutationDelta, Value: -5}
	newQty, applied := m.Apply(3)
	assert.Equal(t, 0, newQty)
	assert.Equal(t, -3, applied)
	assert.True(t, m.Clamped(3))

	m = StockMutation{Mode: MutationDelta, Value: 4}
	newQty, applied = m.Apply(3)
	assert.Equal(t, 7, newQty)
	assert.Equal(t, 4, applied)
	assert.False(t, m.Clamped(3))

	m = StockMutation{Mode: MutationSet, Value: 12}
	newQty, applied = m.Apply(20)
	assert.Equal(t, 12, newQty)
	assert.Equal(t, -8, applied)
}

func TestNewOrderItem_SnapshotsProduct(t *testing.T) {
	p := &Product{ID: 7, Name: "Linen Shirt", SKU: "LS-01", ImageURL: "img.jpg", Price: decimal.RequireFromString("49.99")}
	item := NewOrderItem(p, "M", "navy", 3)

	p.Price = decimal.NewFromInt(10)
	p.Name = "renamed"

	assert.Equal(t, "Linen Shirt", item.ProductName)
	assert.Equal(t, "149.97", item.LineTotal.StringFixed(2))
	assert.Equal(t, "49.99", item.UnitPrice.StringFixed(2))
}

func TestErrorsWrap(t *testing.T) {
	assert.True(t, errors.Is(ErrOrderNotFound, ErrNotFound))
	assert.True(t, errors.Is(&TransitionError{From: OrderStatusCancelled, To: OrderStatusDelivered}, ErrInvalidTransition))
	assert.True(t, errors.Is(&CartError{Issues: []CartIssue{{Message: "x"}}}, ErrInsufficientStock))
	assert.True(t, errors.Is(ValidationError("discount %s", "negative"), ErrValidation))
}

func TestShippingAddress_ValueScan(t *testing.T) {
	in := ShippingAddress{Line1: "1 Main St", City: "Austin", PostalCode: "78701", Country: "US"}
	v, err := in.Value()
	assert.NoError(t, err)

	var out ShippingAddress
	assert.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)
}
