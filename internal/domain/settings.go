package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StoreSettings 店铺计价配置（税率、运费、包邮门槛）
type StoreSettings struct {
	TaxRate               decimal.Decimal `json:"tax_rate"`
	ShippingFlat          decimal.Decimal `json:"shipping_flat"`
	FreeShippingThreshold decimal.Decimal `json:"free_shipping_threshold"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// UpdateSettingsRequest 修改计价配置
type UpdateSettingsRequest struct {
	TaxRate               *decimal.Decimal `json:"tax_rate"`
	ShippingFlat          *decimal.Decimal `json:"shipping_flat"`
	FreeShippingThreshold *decimal.Decimal `json:"free_shipping_threshold"`
}
