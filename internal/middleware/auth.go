package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/resp"
	"github.com/MorseWayne/apparel_shop/internal/service"
)

const bearerPrefix = "Bearer "

// bearerToken 提取 Authorization 头中的令牌，格式错误时返回错误描述
func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "authorization header required"
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	if token == "" {
		return "", "token required"
	}
	return token, ""
}

func userFromClaims(claims *service.Claims) *domain.User {
	return &domain.User{
		ID:       claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
		IsActive: true,
	}
}

// AuthMiddleware JWT认证中间件
// 验证请求头中的访问令牌，并将调用方注入到请求上下文中
func AuthMiddleware(jwtService service.JWTService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())
			traceID := TraceIDFromContext(r.Context())

			tokenString, problem := bearerToken(r)
			if problem != "" {
				logger.Warn("rejecting request", zap.String("request_id", reqID), zap.String("reason", problem))
				resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, problem, reqID, traceID)
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				logger.Warn("token validation failed",
					zap.String("request_id", reqID),
					zap.Error(err),
				)
				msg := "invalid token"
				switch {
				case errors.Is(err, service.ErrTokenExpired):
					msg = "token expired"
				case errors.Is(err, service.ErrTokenNotReady):
					msg = "token not ready"
				}
				resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, msg, reqID, traceID)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userFromClaims(claims))))
		})
	}
}

// RequireRole 角色授权中间件，调用方角色需在 roles 之中
func RequireRole(logger *zap.Logger, roles ...domain.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())
			user := UserFromContext(r.Context())

			// 应由 AuthMiddleware 保证
			if user == nil {
				logger.Error("user not found in context", zap.String("request_id", reqID))
				resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, TraceIDFromContext(r.Context()))
				return
			}

			if !slices.Contains(roles, user.Role) {
				logger.Warn("insufficient permissions",
					zap.String("request_id", reqID),
					zap.Int64("user_id", user.ID),
					zap.String("user_role", string(user.Role)),
					zap.Any("required_roles", roles),
				)
				resp.Error(w, http.StatusForbidden, resp.CodeForbidden, "insufficient permissions", reqID, TraceIDFromContext(r.Context()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin 仅管理员可访问
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, domain.UserRoleAdmin)
}

// RequireStaff 管理员与店员可访问（订单处理、库存调整、告警处理）
func RequireStaff(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, domain.UserRoleAdmin, domain.UserRoleStaff)
}

// OptionalAuth 可选认证中间件
// 存在有效令牌时注入调用方，否则按匿名请求继续处理
func OptionalAuth(jwtService service.JWTService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, problem := bearerToken(r)
			if problem != "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				logger.Debug("optional auth token validation failed",
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userFromClaims(claims))))
		})
	}
}
