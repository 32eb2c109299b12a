// Package api 提供商品、库存台账、告警、订单与店铺配置的 HTTP 处理器。
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/cache"
	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/middleware"
	"github.com/MorseWayne/apparel_shop/internal/resp"
)

// requestID 获取请求ID
func requestID(c *gin.Context) string {
	return middleware.RequestIDFromContext(c.Request.Context())
}

// traceID 获取追踪ID
func traceID(c *gin.Context) string {
	return middleware.TraceIDFromContext(c.Request.Context())
}

// currentActor 当前调用方写入台账的操作人，匿名请求为 nil
func currentActor(c *gin.Context) *string {
	return middleware.UserFromContext(c.Request.Context()).Actor()
}

func ok[T any](c *gin.Context, data T) {
	resp.OK(c.Writer, data, requestID(c), traceID(c))
}

func created[T any](c *gin.Context, data T) {
	resp.Created(c.Writer, data, requestID(c), traceID(c))
}

func badRequest(c *gin.Context, message string) {
	resp.Error(c.Writer, http.StatusBadRequest, resp.CodeInvalidParam, message, requestID(c), traceID(c))
}

// bindJSON 绑定请求体，失败时写出 400
func bindJSON(c *gin.Context, logger *zap.Logger, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		logger.Warn("invalid request body", zap.String("request_id", requestID(c)), zap.Error(err))
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// parseID 解析路径中的正整数ID
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt 读取整数查询参数，缺省或非法时返回 def
func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

// writeError 将领域错误映射为统一错误响应
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	reqID, trID := requestID(c), traceID(c)

	var cartErr *domain.CartError
	var transitionErr *domain.TransitionError
	switch {
	case errors.As(err, &cartErr):
		resp.ErrorWithData(c.Writer, http.StatusConflict, resp.CodeInsufficientStock, "insufficient stock",
			map[string]any{"errors": cartErr.Issues}, reqID, trID)
	case errors.As(err, &transitionErr):
		resp.Error(c.Writer, http.StatusConflict, resp.CodeInvalidTransition, transitionErr.Error(), reqID, trID)
	case errors.Is(err, domain.ErrInvalidTransition):
		resp.Error(c.Writer, http.StatusConflict, resp.CodeInvalidTransition, err.Error(), reqID, trID)
	case errors.Is(err, domain.ErrNotFound):
		resp.Error(c.Writer, http.StatusNotFound, resp.CodeNotFound, err.Error(), reqID, trID)
	case errors.Is(err, domain.ErrValidation):
		resp.Error(c.Writer, http.StatusBadRequest, resp.CodeInvalidParam, err.Error(), reqID, trID)
	case errors.Is(err, cache.ErrRequestInProgress):
		resp.Error(c.Writer, http.StatusConflict, resp.CodeInvalidParam, err.Error(), reqID, trID)
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(c.Writer, http.StatusGatewayTimeout, resp.CodeTimeout, "request timed out", reqID, trID)
	case errors.Is(err, domain.ErrPersistence):
		logger.Error("persistence failure", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(c.Writer, http.StatusInternalServerError, resp.CodeUnavailable, "service temporarily unavailable, please retry", reqID, trID)
	default:
		logger.Error("request failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(c.Writer, http.StatusInternalServerError, resp.CodeInternalError, "internal error", reqID, trID)
	}
}
