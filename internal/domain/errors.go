package domain

import (
	"errors"
	"fmt"
	"strings"
)

// 领域错误
var (
	ErrNotFound           = errors.New("not found")
	ErrProductNotFound    = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound      = fmt.Errorf("order %w", ErrNotFound)
	ErrAlertNotFound      = fmt.Errorf("alert %w", ErrNotFound)
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrAllocationDegraded = errors.New("order number allocation degraded")
	ErrPersistence        = errors.New("persistence failure")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicate          = errors.New("duplicate record")
)

// TransitionError 携带迁移前后状态的 ErrInvalidTransition
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CartError 结账时的库存不足明细，包含所有问题行
type CartError struct {
	Issues []CartIssue
}

func (e *CartError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		msgs = append(msgs, is.Message)
	}
	return "insufficient stock: " + strings.Join(msgs, "; ")
}

func (e *CartError) Unwrap() error { return ErrInsufficientStock }

// ValidationError 请求校验错误
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
