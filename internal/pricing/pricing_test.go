package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		subtotal  string
		discount  string
		wantTax   string
		wantShip  string
		wantTotal string
	}{
		{name: "threshold met, no discount", subtotal: "100.00", discount: "0", wantTax: "10.00", wantShip: "0.00", wantTotal: "110.00"},
		{name: "below threshold", subtotal: "40.00", discount: "0", wantTax: "4.00", wantShip: "10.00", wantTotal: "54.00"},
		{name: "discount keeps free shipping", subtotal: "100.00", discount: "50.00", wantTax: "5.00", wantShip: "0.00", wantTotal: "55.00"},
		{name: "tax rounds half away from zero", subtotal: "10.05", discount: "0", wantTax: "1.01", wantShip: "10.00", wantTotal: "21.06"},
		{name: "zero subtotal", subtotal: "0", discount: "0", wantTax: "0.00", wantShip: "10.00", wantTotal: "10.00"},
		{name: "full discount", subtotal: "120.00", discount: "120.00", wantTax: "0.00", wantShip: "0.00", wantTotal: "0.00"},
		{name: "sub-cent discount rounds before subtraction", subtotal: "10.00", discount: "0.005", wantTax: "1.00", wantShip: "10.00", wantTotal: "20.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(d(tt.subtotal), d(tt.discount), DefaultRules())
			assert.Equal(t, tt.wantTax, got.Tax.StringFixed(2))
			assert.Equal(t, tt.wantShip, got.ShippingCost.StringFixed(2))
			assert.Equal(t, tt.wantTotal, got.Total.StringFixed(2))
		})
	}
}

func TestCalculate_TotalIdentity(t *testing.T) {
	rules := DefaultRules()
	for sub := 0; sub <= 25000; sub += 137 {
		subtotal := decimal.New(int64(sub), -2)
		for _, pct := range []int64{0, 10, 33, 50, 100} {
			discount := subtotal.Mul(decimal.New(pct, -2)).Round(2)
			got := Calculate(subtotal, discount, rules)

			want := subtotal.Sub(discount).Add(got.Tax).Add(got.ShippingCost)
			assert.True(t, got.Total.Equal(want), "subtotal=%s discount=%s total=%s want=%s", subtotal, discount, got.Total, want)
			assert.True(t, got.Tax.Equal(got.Tax.Round(2)))
		}
	}
}

func TestCalculate_SubCentDiscountKeepsIdentity(t *testing.T) {
	for _, disc := range []string{"0.005", "0.004", "1.235", "9.999"} {
		got := Calculate(d("10.00"), d(disc), DefaultRules())
		assert.True(t, got.Discount.Equal(got.Discount.Round(2)), "discount %s not rounded", got.Discount)
		want := got.Subtotal.Sub(got.Discount).Add(got.Tax).Add(got.ShippingCost)
		assert.True(t, got.Total.Equal(want), "discount=%s total=%s want=%s", disc, got.Total, want)
	}
}

func TestCalculate_CustomRules(t *testing.T) {
	rules := Rules{TaxRate: d("0.0825"), ShippingFlat: d("7.50"), FreeShippingThreshold: d("75")}
	got := Calculate(d("74.99"), d("0"), rules)
	assert.Equal(t, "6.19", got.Tax.StringFixed(2))
	assert.Equal(t, "7.50", got.ShippingCost.StringFixed(2))
	assert.Equal(t, "88.68", got.Total.StringFixed(2))
}

func TestEndToEndExample(t *testing.T) {
	line := LineTotal(d("50"), 2)
	got := Calculate(Subtotal(line), decimal.Zero, DefaultRules())

	assert.Equal(t, "100.00", got.Subtotal.StringFixed(2))
	assert.Equal(t, "0.00", got.ShippingCost.StringFixed(2))
	assert.Equal(t, "10.00", got.Tax.StringFixed(2))
	assert.Equal(t, "110.00", got.Total.StringFixed(2))
}
