package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/kafka"
	"github.com/tedxreg/registration/internal/payment"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) ExpireCreatedBefore(ctx context.Context, deadline time.Time) ([]domain.Order, error) {
	args := m.Called(ctx, deadline)
	return args.Get(0).([]domain.Order), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error) {
	args := m.Called(ctx, amount, currency, receipt)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) VerifySignature(orderID, paymentID, signature string) bool {
	args := m.Called(orderID, paymentID, signature)
	return args.Bool(0)
}

type MockQuoter struct {
	mock.Mock
}

func (m *MockQuoter) Quote(ctx context.Context, couponCode string) (domain.PriceQuote, error) {
	args := m.Called(ctx, couponCode)
	return args.Get(0).(domain.PriceQuote), args.Error(1)
}

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) Reserve(ctx context.Context, key string) (bool, string, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.String(1), args.Error(2)
}

func (m *MockIdempotencyStore) Complete(ctx context.Context, key, orderID string) error {
	args := m.Called(ctx, key, orderID)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

var fixedNow = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	orders   *MockOrderRepository
	gateway  *MockGateway
	pricing  *MockQuoter
	idem     *MockIdempotencyStore
	producer *MockProducer
	svc      *OrderService
}

func newFixture() *fixture {
	f := &fixture{
		orders:   &MockOrderRepository{},
		gateway:  &MockGateway{},
		pricing:  &MockQuoter{},
		idem:     &MockIdempotencyStore{},
		producer: &MockProducer{},
	}
	f.svc = NewOrderService(f.orders, f.gateway, f.pricing, "INR",
		WithIdempotency(f.idem),
		WithEvents(f.producer, "tedx.payments"),
		WithOrderTTL(30*time.Minute),
		WithClock(func() time.Time { return fixedNow }),
	)
	return f
}

func TestCreateOrder_Success(t *testing.T) {
	f := newFixture()
	f.pricing.On("Quote", mock.Anything, "SAVE100").Return(domain.NewQuote(500, 100, "SAVE100"), nil)
	f.idem.On("Reserve", mock.Anything, "idem-1").Return(true, "", nil)
	f.gateway.On("CreateOrder", mock.Anything, int64(40000), "INR", mock.AnythingOfType("string")).Return("order_X", nil)
	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
		return o.ID == "order_X" && o.Amount == 400 && o.CouponCode == "SAVE100" && o.ExpiresAt.Equal(fixedNow.Add(30*time.Minute))
	})).Return(nil)
	f.idem.On("Complete", mock.Anything, "idem-1", "order_X").Return(nil)
	f.producer.On("Publish", mock.Anything, "tedx.payments", "order_X", mock.MatchedBy(func(e kafka.PaymentEvent) bool {
		return e.Type == kafka.EventOrderCreated && e.Amount == 400
	})).Return(nil)

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Amount: 400, CouponCode: "SAVE100", IdempotencyKey: "idem-1"})
	require.NoError(t, err)
	assert.Equal(t, "order_X", order.ID)
	assert.Equal(t, int64(40000), order.AmountSubunits())

	f.gateway.AssertExpectations(t)
	f.orders.AssertExpectations(t)
	f.idem.AssertExpectations(t)
	f.producer.AssertExpectations(t)
}

func TestCreateOrder_AmountMustMatchQuote(t *testing.T) {
	f := newFixture()
	f.pricing.On("Quote", mock.Anything, "SAVE100").Return(domain.NewQuote(500, 100, "SAVE100"), nil)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Amount: 1, CouponCode: "SAVE100"})
	var ve domain.ValidationError
	require.True(t, errors.As(err, &ve))
	_, ok := ve.Message("amount")
	assert.True(t, ok)
	f.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_FreeOrderRejected(t *testing.T) {
	f := newFixture()
	f.pricing.On("Quote", mock.Anything, "FREE").Return(domain.NewQuote(500, 500, "FREE"), nil)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Amount: 500, CouponCode: "FREE"})
	assert.True(t, domain.IsValidation(err))
}

func TestCreateOrder_InvalidCouponPassesThrough(t *testing.T) {
	f := newFixture()
	f.pricing.On("Quote", mock.Anything, "OLD").Return(domain.PriceQuote{}, domain.InvalidCouponError{Code: "OLD", Reason: domain.CouponExpired})

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Amount: 500, CouponCode: "OLD"})
	assert.True(t, domain.IsInvalidCoupon(err))
}

func TestCreateOrder_ProviderErrorReleasesKey(t *testing.T) {
	f := newFixture()
	f.pricing.On("Quote", mock.Anything, "").Return(domain.NewQuote(500, 0, ""), nil)
	f.idem.On("Reserve", mock.Anything, "idem-2").Return(true, "", nil)
	f.gateway.On("CreateOrder", mock.Anything, int64(50000), "INR", mock.Anything).Return("", errors.New("503"))
	f.idem.On("Release", mock.Anything, "idem-2").Return(nil)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Amount: 500, IdempotencyKey: "idem-2"})
	assert.True(t, domain.IsProvider(err))
	f.idem.AssertExpectations(t)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrder_IdempotentReplay(t *testing.T) {
	f := newFixture()
	existing := &domain.Order{ID: "order_prev", Amount: 500, Status: domain.OrderStatusCreated}
	f.pricing.On("Quote", mock.Anything, "").Return(domain.NewQuote(500, 0, ""), nil)
	f.idem.On("Reserve", mock.Anything, "idem-3").Return(false, "order_prev", nil)
	f.orders.On("GetByID", mock.Anything, "order_prev").Return(existing, nil)

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Amount: 500, IdempotencyKey: "idem-3"})
	require.NoError(t, err)
	assert.Same(t, existing, order)
	f.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_KeyReusedForDifferentRequest(t *testing.T) {
	f := newFixture()
	existing := &domain.Order{ID: "order_prev", Amount: 500, Status: domain.OrderStatusCreated}
	f.pricing.On("Quote", mock.Anything, "SAVE100").Return(domain.NewQuote(500, 100, "SAVE100"), nil)
	f.idem.On("Reserve", mock.Anything, "idem-5").Return(false, "order_prev", nil)
	f.orders.On("GetByID", mock.Anything, "order_prev").Return(existing, nil)

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Amount: 400, CouponCode: "SAVE100", IdempotencyKey: "idem-5"})
	assert.Nil(t, order)
	assert.True(t, domain.IsConflict(err), "got %v", err)
	f.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_KeyInFlight(t *testing.T) {
	f := newFixture()
	f.pricing.On("Quote", mock.Anything, "").Return(domain.NewQuote(500, 0, ""), nil)
	f.idem.On("Reserve", mock.Anything, "idem-4").Return(false, "", nil)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{Amount: 500, IdempotencyKey: "idem-4"})
	assert.True(t, domain.IsConflict(err))
}

func TestVerify(t *testing.T) {
	const secret = "rzp_secret"
	orders := &MockOrderRepository{}
	gateway := payment.NewGatewayWithOrders(nil, "rzp_test", secret)
	svc := NewOrderService(orders, gateway, &MockQuoter{}, "INR")

	orders.On("GetByID", mock.Anything, "order_1").Return(&domain.Order{ID: "order_1", Amount: 400}, nil)
	orders.On("GetByID", mock.Anything, "order_missing").Return(nil, domain.ErrOrderNotFound)

	valid := payment.Sign(secret, "order_1", "pay_1")

	testCases := []struct {
		name string
		in   domain.PaymentConfirmation
		kind domain.VerificationFailure
	}{
		{"accepted", domain.PaymentConfirmation{OrderID: "order_1", PaymentID: "pay_1", Signature: valid, Amount: 400}, ""},
		{"tampered amount", domain.PaymentConfirmation{OrderID: "order_1", PaymentID: "pay_1", Signature: valid, Amount: 1}, domain.AmountMismatch},
		{"forged signature", domain.PaymentConfirmation{OrderID: "order_1", PaymentID: "pay_1", Signature: payment.Sign("guess", "order_1", "pay_1"), Amount: 400}, domain.SignatureMismatch},
		{"other payment", domain.PaymentConfirmation{OrderID: "order_1", PaymentID: "pay_2", Signature: valid, Amount: 400}, domain.SignatureMismatch},
		{"unknown order", domain.PaymentConfirmation{OrderID: "order_missing", PaymentID: "pay_1", Signature: valid, Amount: 400}, domain.UnknownOrder},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := svc.Verify(context.Background(), tc.in)
			if tc.kind == "" {
				require.NoError(t, err)
				assert.True(t, res.OK)
				assert.Equal(t, int64(400), res.Amount)
				return
			}
			assert.False(t, res.OK)
			var ve domain.VerificationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.kind, ve.Kind)
		})
	}
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestExpirePendingOrders(t *testing.T) {
	f := newFixture()
	expired := []domain.Order{{ID: "order_a", Status: domain.OrderStatusExpired}, {ID: "order_b", Status: domain.OrderStatusExpired}}
	f.orders.On("ExpireCreatedBefore", mock.Anything, fixedNow).Return(expired, nil)
	f.producer.On("Publish", mock.Anything, "tedx.payments", mock.Anything, mock.MatchedBy(func(e kafka.PaymentEvent) bool {
		return e.Type == kafka.EventOrderExpired
	})).Return(nil).Twice()

	got, err := f.svc.ExpirePendingOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	f.producer.AssertExpectations(t)
}
