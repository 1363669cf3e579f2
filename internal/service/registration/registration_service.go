package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/kafka"
	"github.com/tedxreg/registration/internal/repository"
)

type RegistrationUseCase interface {
	Record(ctx context.Context, input RecordInput) (*domain.Registration, error)
	List(ctx context.Context) ([]domain.Registration, error)
}

type Verifier interface {
	Verify(ctx context.Context, confirmation domain.PaymentConfirmation) (domain.VerificationResult, error)
}

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type AttendeeValidator interface {
	Attendee(ctx context.Context, a domain.Attendee) error
}

// CouponClaimer marks a coupon consumed by an order and reports which order holds it.
type CouponClaimer interface {
	Consume(ctx context.Context, code, orderID string) (bool, string, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// RecordInput pairs the attendee with the checkout callback that paid for them.
type RecordInput struct {
	Attendee     domain.Attendee
	Confirmation domain.PaymentConfirmation
}

type RegistrationService struct {
	registrations repository.RegistrationRepository
	orders        OrderReader
	verifier      Verifier
	validator     AttendeeValidator
	coupons       CouponClaimer
	producer      Producer
	topic         string
	log           zerolog.Logger
}

type RegistrationServiceOption func(*RegistrationService)

func WithLogger(log zerolog.Logger) RegistrationServiceOption {
	return func(s *RegistrationService) {
		s.log = log
	}
}

// WithEvents publishes registration_completed to topic for the receipt worker.
func WithEvents(producer Producer, topic string) RegistrationServiceOption {
	return func(s *RegistrationService) {
		s.producer = producer
		s.topic = topic
	}
}

// WithCoupons claims the order's coupon while recording, so a discount paid
// after another order took the coupon is stored as contested.
func WithCoupons(coupons CouponClaimer) RegistrationServiceOption {
	return func(s *RegistrationService) {
		s.coupons = coupons
	}
}

func NewRegistrationService(
	registrations repository.RegistrationRepository,
	orders OrderReader,
	verifier Verifier,
	validator AttendeeValidator,
	opts ...RegistrationServiceOption,
) *RegistrationService {
	service := &RegistrationService{
		registrations: registrations,
		orders:        orders,
		verifier:      verifier,
		validator:     validator,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Record stores a paid registration. The payment is verified again here; the
// client's word that checkout succeeded is not trusted.
func (s *RegistrationService) Record(ctx context.Context, input RecordInput) (*domain.Registration, error) {
	if err := s.validator.Attendee(ctx, input.Attendee); err != nil {
		return nil, err
	}

	res, err := s.verifier.Verify(ctx, input.Confirmation)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, domain.VerificationError{OrderID: input.Confirmation.OrderID, Kind: domain.SignatureMismatch}
	}

	order, err := s.orders.GetByID(ctx, res.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	reg := &domain.Registration{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		PaymentID:  input.Confirmation.PaymentID,
		Amount:     res.Amount,
		CouponCode: order.CouponCode,
		Attendee:   input.Attendee,
	}
	reg.CouponContested = s.claimCoupon(ctx, order)
	if err := s.registrations.Record(ctx, reg); err != nil {
		return nil, err
	}

	s.log.Info().Str("order_id", reg.OrderID).Str("designation", string(reg.Attendee.Designation)).Msg("registration recorded")
	s.publish(ctx, reg, order.Currency)
	return reg, nil
}

func (s *RegistrationService) List(ctx context.Context) ([]domain.Registration, error) {
	return s.registrations.List(ctx)
}

// claimCoupon reports whether the order's coupon is held by a different order.
// Store failures are logged and leave the registration uncontested.
func (s *RegistrationService) claimCoupon(ctx context.Context, order *domain.Order) bool {
	if s.coupons == nil || order.CouponCode == "" {
		return false
	}
	_, holder, err := s.coupons.Consume(ctx, order.CouponCode, order.ID)
	if err != nil {
		s.log.Error().Err(err).Str("coupon", order.CouponCode).Str("order_id", order.ID).Msg("claim coupon for registration")
		return false
	}
	if holder == order.ID {
		return false
	}
	s.log.Warn().Str("coupon", order.CouponCode).Str("order_id", order.ID).Str("holder", holder).Msg("coupon contested")
	return true
}

func (s *RegistrationService) publish(ctx context.Context, reg *domain.Registration, currency string) {
	if s.producer == nil || s.topic == "" {
		return
	}
	event := kafka.PaymentEvent{
		Type:        kafka.EventRegistrationCompleted,
		OrderID:     reg.OrderID,
		PaymentID:   reg.PaymentID,
		Amount:      reg.Amount,
		Currency:    currency,
		CouponCode:  reg.CouponCode,
		Email:       reg.Attendee.Email,
		Name:        reg.Attendee.Name,
		Designation: string(reg.Attendee.Designation),
		Status:      string(domain.OrderStatusPaid),
		OccurredAt:  time.Now(),
	}
	if err := s.producer.Publish(ctx, s.topic, event.Key(), event); err != nil {
		s.log.Warn().Err(err).Str("order_id", reg.OrderID).Msg("publish registration_completed")
	}
}

var _ RegistrationUseCase = (*RegistrationService)(nil)
