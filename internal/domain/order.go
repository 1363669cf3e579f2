package domain

import "time"

type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "CREATED"
	OrderStatusPaid    OrderStatus = "PAID"
	OrderStatusExpired OrderStatus = "EXPIRED"
)

// Order is a provider-side payment intent. Amount is in whole rupees.
type Order struct {
	ID         string
	Amount     int64
	Currency   string
	Receipt    string
	CouponCode string
	Email      string
	Status     OrderStatus
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AmountSubunits is the amount in paise, as the gateway expects it.
func (o Order) AmountSubunits() int64 {
	return o.Amount * 100
}

// PaymentConfirmation arrives from the checkout callback and is untrusted until verified.
type PaymentConfirmation struct {
	OrderID   string
	PaymentID string
	Signature string
	Amount    int64
}

type VerificationResult struct {
	OrderID string
	OK      bool
	Amount  int64
}
