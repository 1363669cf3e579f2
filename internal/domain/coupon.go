package domain

import "time"

type Coupon struct {
	Code       string
	Discount   int64
	ExpiresAt  *time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Check reports whether the coupon can still be applied at now.
func (c Coupon) Check(now time.Time) error {
	if c.ConsumedAt != nil {
		return InvalidCouponError{Code: c.Code, Reason: CouponConsumed}
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return InvalidCouponError{Code: c.Code, Reason: CouponExpired}
	}
	return nil
}

// Consumption is the outcome of invalidating a code. First is true for exactly one caller per code.
// OrderID is the order holding the coupon, empty when it was consumed outside checkout.
type Consumption struct {
	Code    string
	First   bool
	OrderID string
}

// HeldBy reports whether the coupon ended up with orderID.
func (c Consumption) HeldBy(orderID string) bool {
	return orderID != "" && c.OrderID == orderID
}

type PriceQuote struct {
	BasePrice      int64
	DiscountAmount int64
	FinalPrice     int64
	CouponCode     string
}

// NewQuote caps the discount at the base price so FinalPrice = BasePrice - DiscountAmount >= 0.
func NewQuote(base, discount int64, code string) PriceQuote {
	if discount < 0 {
		discount = 0
	}
	if discount > base {
		discount = base
	}
	return PriceQuote{
		BasePrice:      base,
		DiscountAmount: discount,
		FinalPrice:     base - discount,
		CouponCode:     code,
	}
}
