package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/kafka"
)

type CouponUseCase interface {
	Invalidate(ctx context.Context, code string) (domain.Consumption, error)
	InvalidateForOrder(ctx context.Context, code string, confirmation domain.PaymentConfirmation) (domain.Consumption, error)
	Create(ctx context.Context, input CreateCouponInput) (*domain.Coupon, error)
	List(ctx context.Context) ([]domain.Coupon, error)
}

type CouponStore interface {
	Consume(ctx context.Context, code, orderID string) (bool, string, error)
	Create(ctx context.Context, coupon *domain.Coupon) error
	List(ctx context.Context) ([]domain.Coupon, error)
}

type Verifier interface {
	Verify(ctx context.Context, confirmation domain.PaymentConfirmation) (domain.VerificationResult, error)
}

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CreateCouponInput struct {
	Code      string     `json:"code" validate:"required"`
	Discount  int64      `json:"discount" validate:"gt=0"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type CouponService struct {
	coupons  CouponStore
	orders   OrderReader
	verifier Verifier
	producer Producer
	topic    string
	log      zerolog.Logger
}

type CouponServiceOption func(*CouponService)

func WithLogger(log zerolog.Logger) CouponServiceOption {
	return func(s *CouponService) {
		s.log = log
	}
}

// WithEvents publishes coupon_consumed to topic.
func WithEvents(producer Producer, topic string) CouponServiceOption {
	return func(s *CouponService) {
		s.producer = producer
		s.topic = topic
	}
}

// WithPaymentCheck enables InvalidateForOrder, which only consumes a coupon for
// a verified payment on an order that was priced with it.
func WithPaymentCheck(orders OrderReader, verifier Verifier) CouponServiceOption {
	return func(s *CouponService) {
		s.orders = orders
		s.verifier = verifier
	}
}

func NewCouponService(coupons CouponStore, opts ...CouponServiceOption) *CouponService {
	service := &CouponService{coupons: coupons, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Invalidate consumes code outside any checkout. Repeating it for a consumed
// code succeeds with First=false.
func (s *CouponService) Invalidate(ctx context.Context, code string) (domain.Consumption, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Consumption{}, nil
	}
	return s.consume(ctx, code, "")
}

// InvalidateForOrder consumes code on behalf of the order paid for by
// confirmation. The payment must verify and the order must carry code.
func (s *CouponService) InvalidateForOrder(ctx context.Context, code string, confirmation domain.PaymentConfirmation) (domain.Consumption, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Consumption{}, nil
	}
	if s.orders == nil || s.verifier == nil {
		return domain.Consumption{}, errors.New("coupon: payment check is not configured")
	}

	res, err := s.verifier.Verify(ctx, confirmation)
	if err != nil {
		return domain.Consumption{}, err
	}
	if !res.OK {
		return domain.Consumption{}, domain.VerificationError{OrderID: confirmation.OrderID, Kind: domain.SignatureMismatch}
	}

	order, err := s.orders.GetByID(ctx, res.OrderID)
	if err != nil {
		return domain.Consumption{}, fmt.Errorf("load order: %w", err)
	}
	if order.CouponCode != code {
		return domain.Consumption{}, domain.NewValidationError("code", "Coupon was not applied to this order")
	}
	return s.consume(ctx, code, order.ID)
}

func (s *CouponService) consume(ctx context.Context, code, orderID string) (domain.Consumption, error) {
	first, holder, err := s.coupons.Consume(ctx, code, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrCouponNotFound) {
			return domain.Consumption{}, domain.CouponNotFoundError{Code: code}
		}
		return domain.Consumption{}, fmt.Errorf("consume coupon: %w", err)
	}

	result := domain.Consumption{Code: code, First: first, OrderID: holder}
	if !first {
		if orderID != "" && !result.HeldBy(orderID) {
			s.log.Warn().Str("coupon", code).Str("order_id", orderID).Str("holder", holder).Msg("coupon already consumed by another order")
		} else {
			s.log.Info().Str("coupon", code).Msg("coupon already consumed")
		}
		return result, nil
	}

	s.log.Info().Str("coupon", code).Str("order_id", orderID).Msg("coupon consumed")
	if s.producer != nil && s.topic != "" {
		event := kafka.PaymentEvent{Type: kafka.EventCouponConsumed, OrderID: orderID, CouponCode: code, OccurredAt: time.Now()}
		if err := s.producer.Publish(ctx, s.topic, event.Key(), event); err != nil {
			s.log.Warn().Err(err).Str("coupon", code).Msg("publish coupon_consumed")
		}
	}
	return result, nil
}

func (s *CouponService) Create(ctx context.Context, input CreateCouponInput) (*domain.Coupon, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, domain.NewValidationError("code", "Field is required")
	}
	if input.Discount <= 0 {
		return nil, domain.NewValidationError("discount", "Value must be positive")
	}

	c := &domain.Coupon{Code: code, Discount: input.Discount, ExpiresAt: input.ExpiresAt}
	if err := s.coupons.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CouponService) List(ctx context.Context) ([]domain.Coupon, error) {
	return s.coupons.List(ctx)
}

var _ CouponUseCase = (*CouponService)(nil)
