package apperror

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindNotFound          Kind = "NOT_FOUND"
	KindForbidden         Kind = "FORBIDDEN"
	KindConflict          Kind = "CONFLICT"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindInvalidVoucher    Kind = "INVALID_VOUCHER"
	KindConfiguration     Kind = "CONFIGURATION"
	KindGateway           Kind = "GATEWAY"
	KindInternal          Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches caller-visible context (product id, current stock, ...).
func (e *Error) WithDetails(kv map[string]any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, len(kv))
	}
	for k, v := range kv {
		e.Details[k] = v
	}
	return e
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func InvalidVoucher(reason string) *Error {
	return New(KindInvalidVoucher, "invalid voucher: %s", reason).
		WithDetails(map[string]any{"reason": reason})
}

func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, format, args...)
}

func Gateway(err error, format string, args ...any) *Error {
	return Wrap(KindGateway, err, fmt.Sprintf(format, args...))
}

// InsufficientStock names the offending product and what is left of it.
func InsufficientStock(productID uint, productName string, stock int) *Error {
	return New(KindInsufficientStock, "insufficient stock for %q (available: %d)", productName, stock).
		WithDetails(map[string]any{
			"product_id":    productID,
			"product_name":  productName,
			"current_stock": stock,
		})
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
