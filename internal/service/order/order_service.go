package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/kafka"
	"github.com/tedxreg/registration/internal/repository"
)

type OrderUseCase interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error)
	Verify(ctx context.Context, confirmation domain.PaymentConfirmation) (domain.VerificationResult, error)
	ExpirePendingOrders(ctx context.Context) ([]domain.Order, error)
}

type Quoter interface {
	Quote(ctx context.Context, couponCode string) (domain.PriceQuote, error)
}

type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (bool, string, error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CreateOrderInput struct {
	Amount         int64
	CouponCode     string
	Email          string
	IdempotencyKey string
}

type OrderService struct {
	orders   repository.OrderRepository
	gateway  Gateway
	pricing  Quoter
	currency string
	idem     IdempotencyStore
	producer Producer
	topic    string
	orderTTL time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

type OrderServiceOption func(*OrderService)

func WithLogger(log zerolog.Logger) OrderServiceOption {
	return func(s *OrderService) {
		s.log = log
	}
}

func WithIdempotency(store IdempotencyStore) OrderServiceOption {
	return func(s *OrderService) {
		s.idem = store
	}
}

func WithEvents(producer Producer, topic string) OrderServiceOption {
	return func(s *OrderService) {
		s.producer = producer
		s.topic = topic
	}
}

// WithOrderTTL sets how long a created order may stay unpaid before the sweep expires it.
func WithOrderTTL(ttl time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		s.orderTTL = ttl
	}
}

func WithClock(now func() time.Time) OrderServiceOption {
	return func(s *OrderService) {
		s.now = now
	}
}

func NewOrderService(orders repository.OrderRepository, gateway Gateway, pricing Quoter, currency string, opts ...OrderServiceOption) *OrderService {
	service := &OrderService{
		orders:   orders,
		gateway:  gateway,
		pricing:  pricing,
		currency: currency,
		orderTTL: time.Hour,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateOrder re-derives the price and opens a provider order for it.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	if input.Amount <= 0 {
		return nil, domain.NewValidationError("amount", "Value must be positive")
	}

	quote, err := s.pricing.Quote(ctx, input.CouponCode)
	if err != nil {
		return nil, err
	}
	if quote.FinalPrice == 0 {
		return nil, domain.NewValidationError("couponCode", "coupon covers the full price; nothing to pay")
	}
	if input.Amount != quote.FinalPrice {
		s.log.Warn().Int64("amount", input.Amount).Int64("quoted", quote.FinalPrice).Str("coupon", quote.CouponCode).Msg("amount does not match quote")
		return nil, domain.NewValidationError("amount", fmt.Sprintf("amount must equal the quoted price %d", quote.FinalPrice))
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.idem != nil {
		reserved, existingID, err := s.idem.Reserve(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !reserved {
			if existingID == "" {
				return nil, domain.ConflictError{Resource: "order", Msg: "a request with this idempotency key is in progress"}
			}
			return s.replay(ctx, existingID, quote)
		}
	}

	order, err := s.open(ctx, quote, input.Email)
	if err != nil {
		if key != "" && s.idem != nil {
			if relErr := s.idem.Release(ctx, key); relErr != nil {
				s.log.Warn().Err(relErr).Msg("release idempotency key")
			}
		}
		return nil, err
	}

	if key != "" && s.idem != nil {
		if err := s.idem.Complete(ctx, key, order.ID); err != nil {
			s.log.Warn().Err(err).Str("order_id", order.ID).Msg("store idempotency key")
		}
	}

	s.log.Info().Str("order_id", order.ID).Int64("amount", order.Amount).Str("coupon", order.CouponCode).Msg("order created")
	s.publish(ctx, kafka.EventOrderCreated, order)
	return order, nil
}

// replay returns the order already created under an idempotency key, provided
// the repeated request asks for the same amount and coupon.
func (s *OrderService) replay(ctx context.Context, orderID string, quote domain.PriceQuote) (*domain.Order, error) {
	existing, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing.Amount != quote.FinalPrice || existing.CouponCode != quote.CouponCode {
		s.log.Warn().Str("order_id", existing.ID).Int64("amount", quote.FinalPrice).Str("coupon", quote.CouponCode).Msg("idempotency key reused for a different order")
		return nil, domain.ConflictError{Resource: "order", Msg: "idempotency key was already used for a different amount or coupon"}
	}
	return existing, nil
}

func (s *OrderService) open(ctx context.Context, quote domain.PriceQuote, email string) (*domain.Order, error) {
	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	order := &domain.Order{
		Amount:     quote.FinalPrice,
		Currency:   s.currency,
		Receipt:    receipt,
		CouponCode: quote.CouponCode,
		Email:      email,
	}

	id, err := s.gateway.CreateOrder(ctx, order.AmountSubunits(), order.Currency, receipt)
	if err != nil {
		if !domain.IsProvider(err) {
			err = domain.ProviderError{Op: "create order", Err: err}
		}
		s.log.Error().Err(err).Str("receipt", receipt).Msg("provider order failed")
		return nil, err
	}

	order.ID = id
	order.ExpiresAt = s.now().Add(s.orderTTL)
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("save order %s: %w", id, err)
	}
	return order, nil
}

// Verify decides whether a checkout callback proves payment. It has no side effects.
func (s *OrderService) Verify(ctx context.Context, c domain.PaymentConfirmation) (domain.VerificationResult, error) {
	rejected := domain.VerificationResult{OrderID: c.OrderID}

	order, err := s.orders.GetByID(ctx, c.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return s.reject(rejected, domain.UnknownOrder)
		}
		return rejected, fmt.Errorf("load order: %w", err)
	}
	if !s.gateway.VerifySignature(c.OrderID, c.PaymentID, c.Signature) {
		return s.reject(rejected, domain.SignatureMismatch)
	}
	if c.Amount != order.Amount {
		return s.reject(rejected, domain.AmountMismatch)
	}

	return domain.VerificationResult{OrderID: order.ID, OK: true, Amount: order.Amount}, nil
}

func (s *OrderService) reject(res domain.VerificationResult, kind domain.VerificationFailure) (domain.VerificationResult, error) {
	s.log.Warn().Str("order_id", res.OrderID).Str("reason", string(kind)).Msg("payment verification rejected")
	return res, domain.VerificationError{OrderID: res.OrderID, Kind: kind}
}

func (s *OrderService) ExpirePendingOrders(ctx context.Context) ([]domain.Order, error) {
	expired, err := s.orders.ExpireCreatedBefore(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for i := range expired {
		s.publish(ctx, kafka.EventOrderExpired, &expired[i])
	}
	return expired, nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *domain.Order) {
	if s.producer == nil || s.topic == "" {
		return
	}
	event := kafka.PaymentEvent{
		Type:       eventType,
		OrderID:    order.ID,
		Amount:     order.Amount,
		Currency:   order.Currency,
		CouponCode: order.CouponCode,
		Email:      order.Email,
		Status:     string(order.Status),
		OccurredAt: s.now(),
	}
	if err := s.producer.Publish(ctx, s.topic, event.Key(), event); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID).Str("type", eventType).Msg("publish event")
	}
}

var _ OrderUseCase = (*OrderService)(nil)
