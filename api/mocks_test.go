package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/service/coupon"
	"github.com/tedxreg/registration/internal/service/order"
	"github.com/tedxreg/registration/internal/service/registration"
)

type MockPricingUseCase struct {
	mock.Mock
}

func (m *MockPricingUseCase) Quote(ctx context.Context, couponCode string) (domain.PriceQuote, error) {
	args := m.Called(ctx, couponCode)
	return args.Get(0).(domain.PriceQuote), args.Error(1)
}

func (m *MockPricingUseCase) BasePrice() int64 {
	return m.Called().Get(0).(int64)
}

type MockOrderUseCase struct {
	mock.Mock
}

func (m *MockOrderUseCase) CreateOrder(ctx context.Context, input order.CreateOrderInput) (*domain.Order, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderUseCase) Verify(ctx context.Context, confirmation domain.PaymentConfirmation) (domain.VerificationResult, error) {
	args := m.Called(ctx, confirmation)
	return args.Get(0).(domain.VerificationResult), args.Error(1)
}

func (m *MockOrderUseCase) ExpirePendingOrders(ctx context.Context) ([]domain.Order, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Order), args.Error(1)
}

type MockCouponUseCase struct {
	mock.Mock
}

func (m *MockCouponUseCase) Invalidate(ctx context.Context, code string) (domain.Consumption, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(domain.Consumption), args.Error(1)
}

func (m *MockCouponUseCase) InvalidateForOrder(ctx context.Context, code string, conf domain.PaymentConfirmation) (domain.Consumption, error) {
	args := m.Called(ctx, code, conf)
	return args.Get(0).(domain.Consumption), args.Error(1)
}

func (m *MockCouponUseCase) Create(ctx context.Context, input coupon.CreateCouponInput) (*domain.Coupon, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Coupon), args.Error(1)
}

func (m *MockCouponUseCase) List(ctx context.Context) ([]domain.Coupon, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Coupon), args.Error(1)
}

type MockRegistrationUseCase struct {
	mock.Mock
}

func (m *MockRegistrationUseCase) Record(ctx context.Context, input registration.RecordInput) (*domain.Registration, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Registration), args.Error(1)
}

func (m *MockRegistrationUseCase) List(ctx context.Context) ([]domain.Registration, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Registration), args.Error(1)
}
