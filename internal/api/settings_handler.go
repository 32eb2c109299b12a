package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/service"
)

// SettingsHandler 店铺计价配置
type SettingsHandler struct {
	settings service.SettingsService
	logger   *zap.Logger
}

func NewSettingsHandler(settings service.SettingsService, logger *zap.Logger) *SettingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsHandler{settings: settings, logger: logger}
}

// GetSettings GET /api/v1/admin/settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ok(c, settings)
}

// UpdateSettings PUT /api/v1/admin/settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req domain.UpdateSettingsRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	settings, err := h.settings.Update(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("store settings updated",
		zap.String("tax_rate", settings.TaxRate.String()),
		zap.String("shipping_flat", settings.ShippingFlat.String()),
		zap.String("free_shipping_threshold", settings.FreeShippingThreshold.String()))
	ok(c, settings)
}
