// Package pricing 计算订单金额：小计、税、运费、折扣与合计。
//
// 所有金额使用 shopspring/decimal 定点运算，税额与合计四舍五入到 2 位小数。
package pricing

import (
	"github.com/shopspring/decimal"
)

// 默认计价规则
var (
	DefaultTaxRate               = decimal.RequireFromString("0.10")
	DefaultShippingFlat          = decimal.NewFromInt(10)
	DefaultFreeShippingThreshold = decimal.NewFromInt(100)
)

// Rules 计价规则，由店铺配置提供
type Rules struct {
	TaxRate               decimal.Decimal
	ShippingFlat          decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// DefaultRules 返回默认规则：税率 10%，运费 10，满 100 包邮
func DefaultRules() Rules {
	return Rules{
		TaxRate:               DefaultTaxRate,
		ShippingFlat:          DefaultShippingFlat,
		FreeShippingThreshold: DefaultFreeShippingThreshold,
	}
}

// Totals 计算结果
type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`
}

// Calculate 计算订单金额
//
// 包邮判断使用折扣前的小计，折扣不会让已达标的订单失去包邮。
// 折后小计不做截断，是否允许折扣超过小计由调用方校验。
// 小计与折扣先舍入到分，保证 total = subtotal - discount + tax + shipping_cost 对落库的字段成立。
func Calculate(subtotal, discount decimal.Decimal, rules Rules) Totals {
	subtotal = subtotal.Round(2)
	discount = discount.Round(2)
	discounted := subtotal.Sub(discount)
	tax := discounted.Mul(rules.TaxRate).Round(2)

	shipping := rules.ShippingFlat
	if subtotal.GreaterThanOrEqual(rules.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Totals{
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shipping.Round(2),
		Discount:     discount,
		Total:        discounted.Add(tax).Add(shipping).Round(2),
	}
}

// LineTotal 单价 * 数量
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// Subtotal 汇总行金额
func Subtotal(lines ...decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l)
	}
	return sum
}
