package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/validation"
)

// fakeBackend prices with base 500 and a single SAVE100 coupon, and records call order.
type fakeBackend struct {
	mu        sync.Mutex
	calls     []string
	orders    []OrderRequest
	consumed  bool
	holder    string
	createErr error
	verifyOK  bool
	verifyErr error
	recordErr error
	// block, when set, holds CreateOrder until closed.
	block   chan struct{}
	entered chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{verifyOK: true}
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) Quote(_ context.Context, code string) (domain.PriceQuote, error) {
	b.record("quote:" + code)
	b.mu.Lock()
	defer b.mu.Unlock()
	switch code {
	case "":
		return domain.NewQuote(500, 0, ""), nil
	case "SAVE100":
		if b.consumed {
			return domain.PriceQuote{}, domain.InvalidCouponError{Code: code, Reason: domain.CouponConsumed}
		}
		return domain.NewQuote(500, 100, code), nil
	default:
		return domain.PriceQuote{}, domain.InvalidCouponError{Code: code, Reason: domain.CouponUnknown}
	}
}

func (b *fakeBackend) CreateOrder(_ context.Context, req OrderRequest) (string, error) {
	b.record("create")
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return "", b.createErr
	}
	b.orders = append(b.orders, req)
	return fmt.Sprintf("order_%d", len(b.orders)), nil
}

func (b *fakeBackend) Verify(_ context.Context, c domain.PaymentConfirmation) (domain.VerificationResult, error) {
	b.record("verify")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.verifyErr != nil {
		return domain.VerificationResult{OrderID: c.OrderID}, b.verifyErr
	}
	if !b.verifyOK {
		return domain.VerificationResult{OrderID: c.OrderID}, domain.VerificationError{OrderID: c.OrderID, Kind: domain.SignatureMismatch}
	}
	return domain.VerificationResult{OrderID: c.OrderID, OK: true, Amount: c.Amount}, nil
}

func (b *fakeBackend) InvalidateCoupon(_ context.Context, code string, c domain.PaymentConfirmation) (domain.Consumption, error) {
	b.record("invalidate:" + code)
	b.mu.Lock()
	defer b.mu.Unlock()
	first := !b.consumed
	if first {
		b.consumed = true
		b.holder = c.OrderID
	}
	return domain.Consumption{Code: code, First: first, OrderID: b.holder}, nil
}

func (b *fakeBackend) RecordRegistration(context.Context, RegistrationRequest) error {
	b.record("register")
	return b.recordErr
}

func photo() domain.Upload {
	return domain.Upload{Filename: "p.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")}
}

func facultyDetails() Details {
	return Details{Name: "Meera Iyer", Email: "meera@example.com", Phone: "9000000001", Photo: photo()}
}

// atPayment drives a controller to the Payment step as a faculty member.
func atPayment(t *testing.T, b *fakeBackend) *Controller {
	t.Helper()
	c := New(b, validation.New(validation.DefaultLimits), WithKeyID("rzp_test_key"))
	ctx := context.Background()
	require.NoError(t, c.SelectDesignation(ctx, "faculty"))
	require.NoError(t, c.SubmitDetails(ctx, facultyDetails()))
	require.Equal(t, StepPayment, c.State().Step)
	return c
}

func TestSelectDesignation(t *testing.T) {
	c := New(newFakeBackend(), validation.New(validation.DefaultLimits))
	ctx := context.Background()

	err := c.SelectDesignation(ctx, "")
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, StepDesignation, c.State().Step)
	assert.Equal(t, NoticeValidation, c.State().Notice.Kind)

	err = c.SelectDesignation(ctx, "visitor")
	assert.True(t, domain.IsValidation(err))

	require.NoError(t, c.SelectDesignation(ctx, "student"))
	assert.Equal(t, StepDetails, c.State().Step)
	assert.Equal(t, domain.DesignationStudent, c.State().Designation)
	assert.Equal(t, NoticeNone, c.State().Notice.Kind)
}

func TestSubmitDetails_FacultyWithoutStudentFields(t *testing.T) {
	b := newFakeBackend()
	c := atPayment(t, b)

	s := c.State()
	require.NotNil(t, s.Quote)
	assert.Equal(t, domain.PriceQuote{BasePrice: 500, FinalPrice: 500}, *s.Quote)
	assert.Nil(t, s.Attendee.Student)
}

func TestSubmitDetails_StudentNeedsCredentials(t *testing.T) {
	c := New(newFakeBackend(), validation.New(validation.DefaultLimits))
	ctx := context.Background()
	require.NoError(t, c.SelectDesignation(ctx, "student"))

	d := facultyDetails()
	err := c.SubmitDetails(ctx, d)
	require.True(t, domain.IsValidation(err))
	assert.Equal(t, StepDetails, c.State().Step)

	var fields []string
	for _, f := range c.State().Notice.Fields {
		fields = append(fields, f.Field)
	}
	assert.Contains(t, fields, "usn")
	assert.Contains(t, fields, "idCard")

	d.Student = &domain.StudentCredentials{USN: "1BM22CS100", IDCard: photo()}
	require.NoError(t, c.SubmitDetails(ctx, d))
	assert.Equal(t, StepPayment, c.State().Step)
}

func TestBack(t *testing.T) {
	b := newFakeBackend()
	c := atPayment(t, b)

	require.NoError(t, c.Back())
	assert.Equal(t, StepDetails, c.State().Step)
	require.NoError(t, c.Back())
	assert.Equal(t, StepDesignation, c.State().Step)
	assert.ErrorIs(t, c.Back(), ErrWrongStep)
}

func TestApplyCoupon(t *testing.T) {
	b := newFakeBackend()
	c := atPayment(t, b)
	ctx := context.Background()

	require.NoError(t, c.ApplyCoupon(ctx, "SAVE100"))
	s := c.State()
	assert.Equal(t, StepPayment, s.Step)
	assert.Equal(t, int64(400), s.Quote.FinalPrice)
	assert.Equal(t, "SAVE100", s.CouponCode)

	err := c.ApplyCoupon(ctx, "BOGUS")
	assert.True(t, domain.IsInvalidCoupon(err))
	s = c.State()
	assert.Equal(t, int64(400), s.Quote.FinalPrice, "rejected code keeps the previous quote")
	assert.Equal(t, "SAVE100", s.CouponCode)
	assert.Equal(t, NoticeInvalidCoupon, s.Notice.Kind)
}

func TestPay_AcceptedPaymentInvalidatesCouponAfterVerify(t *testing.T) {
	b := newFakeBackend()
	c := atPayment(t, b)
	ctx := context.Background()
	require.NoError(t, c.ApplyCoupon(ctx, "SAVE100"))

	co, err := c.Pay(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order_1", co.OrderID)
	assert.Equal(t, int64(40000), co.AmountSubunits)
	assert.Equal(t, "rzp_test_key", co.KeyID)
	assert.Equal(t, "meera@example.com", co.Prefill.Email)
	assert.True(t, c.State().InFlight)

	require.NoError(t, c.OnPaymentSuccess(ctx, PaymentCallback{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}))

	s := c.State()
	assert.Equal(t, StepSuccess, s.Step)
	assert.Equal(t, "order_1", s.PaidOrderID)
	assert.False(t, s.InFlight)

	calls := b.Calls()
	verifyAt, invalidateAt := indexOf(calls, "verify"), indexOf(calls, "invalidate:SAVE100")
	require.GreaterOrEqual(t, verifyAt, 0)
	require.GreaterOrEqual(t, invalidateAt, 0)
	assert.Less(t, verifyAt, invalidateAt)
	assert.Less(t, invalidateAt, indexOf(calls, "register"))

	// A later registrant cannot reuse the code.
	other := atPayment(t, b)
	assert.True(t, domain.IsInvalidCoupon(other.ApplyCoupon(ctx, "SAVE100")))
}

func TestPay_RejectedPaymentStaysInPaymentAndRetriesWithNewOrder(t *testing.T) {
	b := newFakeBackend()
	b.verifyOK = false
	c := atPayment(t, b)
	ctx := context.Background()
	require.NoError(t, c.ApplyCoupon(ctx, "SAVE100"))

	first, err := c.Pay(ctx)
	require.NoError(t, err)
	err = c.OnPaymentSuccess(ctx, PaymentCallback{OrderID: first.OrderID, PaymentID: "pay_1", Signature: "forged"})
	assert.True(t, domain.IsVerification(err))

	s := c.State()
	assert.Equal(t, StepPayment, s.Step)
	assert.Equal(t, NoticePaymentFailed, s.Notice.Kind)
	assert.Nil(t, s.Checkout)
	assert.NotContains(t, b.Calls(), "invalidate:SAVE100")
	assert.NotContains(t, b.Calls(), "register")

	b.verifyOK = true
	second, err := c.Pay(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.NotEqual(t, first.IdempotencyKey, second.IdempotencyKey)
	require.NoError(t, c.OnPaymentSuccess(ctx, PaymentCallback{OrderID: second.OrderID, PaymentID: "pay_2", Signature: "ok"}))
	assert.Equal(t, StepSuccess, c.State().Step)
}

func TestPay_SecondSubmissionWhileInFlight(t *testing.T) {
	b := newFakeBackend()
	c := atPayment(t, b)
	b.block = make(chan struct{})
	b.entered = make(chan struct{}, 1)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.Pay(ctx)
		done <- err
	}()
	<-b.entered

	_, err := c.Pay(ctx)
	assert.ErrorIs(t, err, ErrCheckoutInFlight)
	assert.ErrorIs(t, c.ApplyCoupon(ctx, "SAVE100"), ErrCheckoutInFlight)
	assert.ErrorIs(t, c.Back(), ErrCheckoutInFlight)

	close(b.block)
	require.NoError(t, <-done)

	// Still guarded while waiting for the provider callback.
	_, err = c.Pay(ctx)
	assert.ErrorIs(t, err, ErrCheckoutInFlight)

	b.mu.Lock()
	assert.Len(t, b.orders, 1)
	b.mu.Unlock()
}

func TestPay_ProviderErrorLeavesPaymentStep(t *testing.T) {
	b := newFakeBackend()
	b.createErr = domain.ProviderError{Op: "create order", Err: errors.New("timeout")}
	c := atPayment(t, b)

	_, err := c.Pay(context.Background())
	assert.True(t, domain.IsProvider(err))
	s := c.State()
	assert.Equal(t, StepPayment, s.Step)
	assert.False(t, s.InFlight)
	assert.Equal(t, NoticeProvider, s.Notice.Kind)
}

func TestOnCheckoutDismissed(t *testing.T) {
	b := newFakeBackend()
	c := atPayment(t, b)
	ctx := context.Background()
	require.NoError(t, c.ApplyCoupon(ctx, "SAVE100"))
	before := c.State()

	co, err := c.Pay(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, c.OnCheckoutDismissed("order_other"), ErrUnexpectedCallback)
	require.NoError(t, c.OnCheckoutDismissed(co.OrderID))

	after := c.State()
	assert.Equal(t, StepPayment, after.Step)
	assert.Equal(t, before.Quote, after.Quote)
	assert.Equal(t, before.CouponCode, after.CouponCode)
	assert.False(t, after.InFlight)
	assert.NotContains(t, b.Calls(), "verify")
}

func TestOnPaymentSuccess_UnexpectedCallback(t *testing.T) {
	b := newFakeBackend()
	c := atPayment(t, b)
	ctx := context.Background()

	assert.ErrorIs(t, c.OnPaymentSuccess(ctx, PaymentCallback{OrderID: "order_1"}), ErrUnexpectedCallback)

	_, err := c.Pay(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, c.OnPaymentSuccess(ctx, PaymentCallback{OrderID: "order_9"}), ErrUnexpectedCallback)
	assert.True(t, c.State().InFlight)
	assert.NotContains(t, b.Calls(), "verify")
}

func TestOnPaymentSuccess_RecordFailureStillSucceeds(t *testing.T) {
	b := newFakeBackend()
	b.recordErr = errors.New("db down")
	c := atPayment(t, b)
	ctx := context.Background()

	co, err := c.Pay(ctx)
	require.NoError(t, err)
	require.NoError(t, c.OnPaymentSuccess(ctx, PaymentCallback{OrderID: co.OrderID, PaymentID: "pay_1", Signature: "ok"}))

	s := c.State()
	assert.Equal(t, StepSuccess, s.Step)
	assert.Equal(t, NoticeFollowUp, s.Notice.Kind)
	assert.Contains(t, s.Notice.Message, co.OrderID)
}

func TestOnPaymentSuccess_VerifyUnavailableKeepsCheckout(t *testing.T) {
	b := newFakeBackend()
	b.verifyErr = errors.New("connection reset")
	c := atPayment(t, b)
	ctx := context.Background()
	require.NoError(t, c.ApplyCoupon(ctx, "SAVE100"))

	co, err := c.Pay(ctx)
	require.NoError(t, err)
	cb := PaymentCallback{OrderID: co.OrderID, PaymentID: "pay_1", Signature: "sig"}

	err = c.OnPaymentSuccess(ctx, cb)
	require.Error(t, err)
	assert.False(t, domain.IsVerification(err))

	s := c.State()
	assert.Equal(t, StepPayment, s.Step)
	assert.True(t, s.InFlight)
	require.NotNil(t, s.Checkout)
	assert.Equal(t, co.OrderID, s.Checkout.OrderID)
	assert.Equal(t, NoticeError, s.Notice.Kind)
	assert.NotContains(t, b.Calls(), "invalidate:SAVE100")
	assert.NotContains(t, b.Calls(), "register")
	_, err = c.Pay(ctx)
	assert.ErrorIs(t, err, ErrCheckoutInFlight)

	b.mu.Lock()
	b.verifyErr = nil
	b.mu.Unlock()
	require.NoError(t, c.OnPaymentSuccess(ctx, cb))
	assert.Equal(t, StepSuccess, c.State().Step)
	assert.Equal(t, co.OrderID, c.State().PaidOrderID)

	b.mu.Lock()
	assert.Len(t, b.orders, 1)
	b.mu.Unlock()
}

func TestOnPaymentSuccess_CouponTakenByAnotherOrder(t *testing.T) {
	b := newFakeBackend()
	c := atPayment(t, b)
	ctx := context.Background()
	require.NoError(t, c.ApplyCoupon(ctx, "SAVE100"))

	co, err := c.Pay(ctx)
	require.NoError(t, err)

	// Another registrant paid with the same code while this checkout was open.
	b.mu.Lock()
	b.consumed = true
	b.holder = "order_other"
	b.mu.Unlock()

	require.NoError(t, c.OnPaymentSuccess(ctx, PaymentCallback{OrderID: co.OrderID, PaymentID: "pay_1", Signature: "sig"}))

	s := c.State()
	assert.Equal(t, StepSuccess, s.Step)
	assert.Equal(t, NoticeFollowUp, s.Notice.Kind)
	assert.Contains(t, s.Notice.Message, "SAVE100")
	assert.Contains(t, s.Notice.Message, co.OrderID)
	assert.Contains(t, b.Calls(), "register")
}

func TestOnPaymentSuccess_RepeatedInvalidationBySameOrderIsNotContested(t *testing.T) {
	b := newFakeBackend()
	c := atPayment(t, b)
	ctx := context.Background()
	require.NoError(t, c.ApplyCoupon(ctx, "SAVE100"))

	co, err := c.Pay(ctx)
	require.NoError(t, err)

	b.mu.Lock()
	b.consumed = true
	b.holder = co.OrderID
	b.mu.Unlock()

	require.NoError(t, c.OnPaymentSuccess(ctx, PaymentCallback{OrderID: co.OrderID, PaymentID: "pay_1", Signature: "sig"}))
	assert.Equal(t, NoticeInfo, c.State().Notice.Kind)
}

func indexOf(calls []string, call string) int {
	for i, c := range calls {
		if c == call {
			return i
		}
	}
	return -1
}
