// Package resp 定义统一的 JSON 响应结构与业务错误码。
package resp

import (
	"encoding/json"
	"net/http"
)

// 业务错误码
const (
	CodeOK                = 0
	CodeInvalidParam      = 10001
	CodeUnauthorized      = 10002
	CodeForbidden         = 10003
	CodeNotFound          = 10004
	CodeTooManyRequests   = 10005
	CodeInvalidTransition = 20001
	CodeInsufficientStock = 20002
	CodeInternalError     = 50000
	CodeTimeout           = 50004
	CodeUnavailable       = 50003
)

// Response 统一响应结构
type Response[T any] struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      T      `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// HTTPStatusFromCode 业务码到 HTTP 状态码的默认映射
func HTTPStatusFromCode(code int) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeInvalidTransition, CodeInsufficientStock:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON 写出统一结构的 JSON 响应
func WriteJSON[T any](w http.ResponseWriter, status, code int, message string, data T, requestID, traceID string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response[T]{
		Code:      code,
		Message:   message,
		Data:      data,
		RequestID: requestID,
		TraceID:   traceID,
	})
}

// OK 写出成功响应
func OK[T any](w http.ResponseWriter, data T, requestID, traceID string) {
	WriteJSON(w, http.StatusOK, CodeOK, "success", data, requestID, traceID)
}

// Created 写出 201 响应
func Created[T any](w http.ResponseWriter, data T, requestID, traceID string) {
	WriteJSON(w, http.StatusCreated, CodeOK, "created", data, requestID, traceID)
}

// Error 写出错误响应（无 data）
func Error(w http.ResponseWriter, status, code int, message, requestID, traceID string) {
	WriteJSON[any](w, status, code, message, nil, requestID, traceID)
}

// ErrorWithData 写出携带明细的错误响应，例如购物车校验失败明细
func ErrorWithData[T any](w http.ResponseWriter, status, code int, message string, data T, requestID, traceID string) {
	WriteJSON(w, status, code, message, data, requestID, traceID)
}
