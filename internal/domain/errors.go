package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCouponNotFound     = errors.New("coupon not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrRegistrationExists = errors.New("registration already recorded for order")
)

type FieldError struct {
	Field string
	Msg   string
}

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(field, msg string) ValidationError {
	return ValidationError{Fields: []FieldError{{Field: field, Msg: msg}}}
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation error"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Msg))
	}
	return strings.Join(parts, "; ")
}

// Message returns the message for field, if any.
func (e ValidationError) Message(field string) (string, bool) {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Msg, true
		}
	}
	return "", false
}

type CouponRejection string

const (
	CouponUnknown  CouponRejection = "not found"
	CouponExpired  CouponRejection = "expired"
	CouponConsumed CouponRejection = "already used"
)

type InvalidCouponError struct {
	Code   string
	Reason CouponRejection
}

func (e InvalidCouponError) Error() string {
	return fmt.Sprintf("coupon %q is invalid: %s", e.Code, e.Reason)
}

// CouponNotFoundError is returned by invalidation only; a consumed coupon is not "not found".
type CouponNotFoundError struct {
	Code string
}

func (e CouponNotFoundError) Error() string {
	return fmt.Sprintf("coupon %q does not exist", e.Code)
}

func (e CouponNotFoundError) Unwrap() error { return ErrCouponNotFound }

type ProviderError struct {
	Op  string
	Err error
}

func (e ProviderError) Error() string {
	if e.Err == nil {
		return "payment provider: " + e.Op + " failed"
	}
	return fmt.Sprintf("payment provider: %s: %v", e.Op, e.Err)
}

func (e ProviderError) Unwrap() error { return e.Err }

type VerificationFailure string

const (
	SignatureMismatch VerificationFailure = "signature mismatch"
	AmountMismatch    VerificationFailure = "amount mismatch"
	UnknownOrder      VerificationFailure = "unknown order"
)

type VerificationError struct {
	OrderID string
	Kind    VerificationFailure
}

func (e VerificationError) Error() string {
	return fmt.Sprintf("payment for order %s not verified: %s", e.OrderID, e.Kind)
}

type ConflictError struct {
	Resource string
	Msg      string
}

func (e ConflictError) Error() string {
	if e.Msg == "" {
		return e.Resource + " conflict"
	}
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsInvalidCoupon(err error) bool {
	var target InvalidCouponError
	return errors.As(err, &target)
}

func IsCouponNotFound(err error) bool {
	var target CouponNotFoundError
	return errors.As(err, &target)
}

func IsProvider(err error) bool {
	var target ProviderError
	return errors.As(err, &target)
}

func IsVerification(err error) bool {
	var target VerificationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}
