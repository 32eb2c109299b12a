package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/resp"
	"github.com/MorseWayne/apparel_shop/internal/service"
)

// AuthHandler 令牌刷新。登录注册由外部身份服务负责，这里只负责换发令牌
type AuthHandler struct {
	jwtService service.JWTService
	logger     *zap.Logger
}

// NewAuthHandler 创建令牌处理器
func NewAuthHandler(jwtService service.JWTService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{jwtService: jwtService, logger: logger}
}

// RefreshToken 刷新访问令牌
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req domain.RefreshTokenRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	pair, err := h.jwtService.RefreshTokenPair(req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenExpired):
			resp.Error(c.Writer, http.StatusUnauthorized, resp.CodeUnauthorized, "refresh token expired", requestID(c), traceID(c))
		case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrTokenNotReady):
			resp.Error(c.Writer, http.StatusUnauthorized, resp.CodeUnauthorized, "invalid refresh token", requestID(c), traceID(c))
		default:
			writeError(c, h.logger, err)
		}
		return
	}
	ok(c, pair)
}
