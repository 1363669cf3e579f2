package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/domain"
)

var (
	ErrCheckoutInFlight   = errors.New("workflow: a checkout is already in progress")
	ErrBusy               = errors.New("workflow: another request is in progress")
	ErrUnexpectedCallback = errors.New("workflow: callback does not match the open checkout")
	ErrWrongStep          = errors.New("workflow: operation not allowed at this step")
)

type OrderRequest struct {
	Amount         int64
	CouponCode     string
	Email          string
	IdempotencyKey string
}

type RegistrationRequest struct {
	Attendee     domain.Attendee
	Confirmation domain.PaymentConfirmation
}

// Backend is the server side of the workflow.
type Backend interface {
	Quote(ctx context.Context, couponCode string) (domain.PriceQuote, error)
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)
	Verify(ctx context.Context, confirmation domain.PaymentConfirmation) (domain.VerificationResult, error)
	// InvalidateCoupon consumes code for the order paid for by confirmation.
	InvalidateCoupon(ctx context.Context, code string, confirmation domain.PaymentConfirmation) (domain.Consumption, error)
	RecordRegistration(ctx context.Context, req RegistrationRequest) error
}

type Validator interface {
	Designation(ctx context.Context, designation string) error
	Attendee(ctx context.Context, a domain.Attendee) error
}

// Controller drives one registrant through designation, details and payment.
// Methods are safe for concurrent use; backend calls run without the lock held.
type Controller struct {
	backend   Backend
	validator Validator
	keyID     string
	currency  string
	log       zerolog.Logger

	mu          sync.Mutex
	step        Step
	phase       phase
	attendee    domain.Attendee
	quote       *domain.PriceQuote
	couponCode  string
	checkout    *Checkout
	notice      Notice
	paidOrderID string
}

type Option func(*Controller)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithKeyID sets the public provider key handed to the checkout widget.
func WithKeyID(keyID string) Option {
	return func(c *Controller) {
		c.keyID = keyID
	}
}

func WithCurrency(currency string) Option {
	return func(c *Controller) {
		c.currency = currency
	}
}

func New(backend Backend, validator Validator, opts ...Option) *Controller {
	c := &Controller{
		backend:   backend,
		validator: validator,
		currency:  "INR",
		log:       zerolog.Nop(),
		step:      StepDesignation,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Step:        c.step,
		Designation: c.attendee.Designation,
		Attendee:    c.attendee,
		CouponCode:  c.couponCode,
		InFlight:    c.phase != phaseIdle,
		Notice:      c.notice,
		PaidOrderID: c.paidOrderID,
	}
	if c.quote != nil {
		q := *c.quote
		s.Quote = &q
	}
	if c.checkout != nil {
		co := *c.checkout
		s.Checkout = &co
	}
	return s
}

func (c *Controller) SelectDesignation(ctx context.Context, designation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepDesignation {
		return ErrWrongStep
	}
	designation = strings.TrimSpace(designation)
	if err := c.validator.Designation(ctx, designation); err != nil {
		c.setNoticeLocked(err)
		return err
	}

	d := domain.Designation(designation)
	c.attendee.Designation = d
	if !d.RequiresStudentCredentials() {
		c.attendee.Student = nil
	}
	c.step = StepDetails
	c.notice = Notice{}
	return nil
}

// SubmitDetails validates the form for the chosen designation and moves to
// Payment with the undiscounted quote.
func (c *Controller) SubmitDetails(ctx context.Context, d Details) error {
	c.mu.Lock()
	if c.step != StepDetails {
		c.mu.Unlock()
		return ErrWrongStep
	}

	a := domain.Attendee{
		Designation: c.attendee.Designation,
		Name:        strings.TrimSpace(d.Name),
		Email:       strings.TrimSpace(d.Email),
		Phone:       strings.TrimSpace(d.Phone),
		Photo:       d.Photo,
	}
	if a.Designation.RequiresStudentCredentials() {
		a.Student = d.Student
	}
	if err := c.validator.Attendee(ctx, a); err != nil {
		c.setNoticeLocked(err)
		c.mu.Unlock()
		return err
	}

	c.attendee = a
	c.step = StepPayment
	c.quote = nil
	c.couponCode = ""
	c.notice = Notice{}
	c.phase = phaseQuoting
	c.mu.Unlock()

	quote, err := c.backend.Quote(ctx, "")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phaseIdle
	if err != nil {
		// Pay fetches the quote again.
		c.log.Warn().Err(err).Msg("initial quote failed")
		c.setNoticeLocked(err)
		return nil
	}
	c.quote = &quote
	return nil
}

func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.step {
	case StepDetails:
		c.step = StepDesignation
	case StepPayment:
		if c.phase.checkoutInFlight() {
			return ErrCheckoutInFlight
		}
		if c.phase != phaseIdle {
			return ErrBusy
		}
		c.step = StepDetails
	default:
		return ErrWrongStep
	}
	c.notice = Notice{}
	return nil
}

// ApplyCoupon re-prices with code. The step does not change and a rejected
// code leaves the current quote in place.
func (c *Controller) ApplyCoupon(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)

	c.mu.Lock()
	if err := c.beginLocked(phaseQuoting); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	quote, err := c.backend.Quote(ctx, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phaseIdle
	if err != nil {
		c.setNoticeLocked(err)
		return err
	}
	c.quote = &quote
	c.couponCode = quote.CouponCode
	if code == "" {
		c.notice = Notice{}
	} else {
		c.notice = Notice{Kind: NoticeInfo, Message: fmt.Sprintf("Coupon applied: %d off.", quote.DiscountAmount)}
	}
	return nil
}

// Pay opens a new provider order for the displayed quote. Each call uses a
// fresh idempotency key, so a retry after a failed payment gets a new order.
func (c *Controller) Pay(ctx context.Context) (Checkout, error) {
	c.mu.Lock()
	if err := c.beginLocked(phaseCreatingOrder); err != nil {
		c.mu.Unlock()
		return Checkout{}, err
	}
	quote, code, a := c.quote, c.couponCode, c.attendee
	c.mu.Unlock()

	if quote == nil {
		q, err := c.backend.Quote(ctx, code)
		if err != nil {
			return Checkout{}, c.failPay(err)
		}
		quote = &q
	}

	key := uuid.NewString()
	orderID, err := c.backend.CreateOrder(ctx, OrderRequest{
		Amount:         quote.FinalPrice,
		CouponCode:     code,
		Email:          a.Email,
		IdempotencyKey: key,
	})
	if err != nil {
		return Checkout{}, c.failPay(err)
	}

	co := Checkout{
		KeyID:          c.keyID,
		OrderID:        orderID,
		AmountSubunits: quote.FinalPrice * 100,
		Currency:       c.currency,
		Description:    fmt.Sprintf("TEDx registration (%s)", a.Designation),
		Prefill:        Prefill{Name: a.Name, Email: a.Email, Contact: a.Phone},
		IdempotencyKey: key,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.quote = quote
	c.checkout = &co
	c.phase = phaseAwaitingCallback
	c.notice = Notice{}
	c.log.Info().Str("order_id", orderID).Int64("amount", quote.FinalPrice).Msg("checkout opened")
	return co, nil
}

func (c *Controller) failPay(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phaseIdle
	c.setNoticeLocked(err)
	return err
}

// OnPaymentSuccess is the only way out of an open checkout towards success.
// Verification strictly precedes coupon invalidation.
func (c *Controller) OnPaymentSuccess(ctx context.Context, cb PaymentCallback) error {
	c.mu.Lock()
	if c.phase != phaseAwaitingCallback || c.checkout == nil || c.checkout.OrderID != cb.OrderID {
		c.mu.Unlock()
		return ErrUnexpectedCallback
	}
	c.phase = phaseVerifying
	co, code, a, quote := *c.checkout, c.couponCode, c.attendee, *c.quote
	c.mu.Unlock()

	confirmation := domain.PaymentConfirmation{
		OrderID:   cb.OrderID,
		PaymentID: cb.PaymentID,
		Signature: cb.Signature,
		Amount:    quote.FinalPrice,
	}
	res, err := c.backend.Verify(ctx, confirmation)
	if err == nil && !res.OK {
		err = domain.VerificationError{OrderID: cb.OrderID, Kind: domain.SignatureMismatch}
	}
	if err != nil && !domain.IsVerification(err) {
		// Not a verdict on the payment; the same callback may be retried.
		c.mu.Lock()
		defer c.mu.Unlock()
		c.phase = phaseAwaitingCallback
		c.notice = Notice{Kind: NoticeError, Message: "Could not confirm the payment yet. Please retry."}
		c.log.Warn().Err(err).Str("order_id", co.OrderID).Msg("payment verification unavailable")
		return err
	}
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.phase = phaseIdle
		c.checkout = nil
		c.notice = Notice{Kind: NoticePaymentFailed, Message: "Payment failed. You can try again."}
		c.log.Warn().Err(err).Str("order_id", co.OrderID).Msg("payment not verified")
		return err
	}

	var followUp []string
	contested := false
	if code != "" {
		cons, err := c.backend.InvalidateCoupon(ctx, code, confirmation)
		switch {
		case err != nil:
			c.log.Error().Err(err).Str("coupon", code).Str("order_id", co.OrderID).Msg("invalidate coupon after payment")
			followUp = append(followUp, "coupon")
		case !cons.First && !cons.HeldBy(co.OrderID):
			c.log.Warn().Str("coupon", code).Str("order_id", co.OrderID).Str("holder", cons.OrderID).Msg("coupon used by another registration")
			contested = true
		}
	}
	if err := c.backend.RecordRegistration(ctx, RegistrationRequest{Attendee: a, Confirmation: confirmation}); err != nil {
		c.log.Error().Err(err).Str("order_id", co.OrderID).Msg("record registration after payment")
		followUp = append(followUp, "registration")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = StepSuccess
	c.phase = phaseIdle
	c.checkout = nil
	c.paidOrderID = co.OrderID
	c.notice = Notice{Kind: NoticeInfo, Message: "Registration complete."}
	switch {
	case len(followUp) > 0:
		c.notice = Notice{
			Kind:    NoticeFollowUp,
			Message: fmt.Sprintf("Payment received for order %s, but %s could not be saved. Please contact the organisers.", co.OrderID, strings.Join(followUp, " and ")),
		}
	case contested:
		c.notice = Notice{
			Kind:    NoticeFollowUp,
			Message: fmt.Sprintf("Payment received for order %s, but coupon %s was already used by another registration. Please contact the organisers.", co.OrderID, code),
		}
	}
	return nil
}

// OnCheckoutDismissed returns to Payment with the quote untouched. The
// provider order is left for the expiry sweep.
func (c *Controller) OnCheckoutDismissed(orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != phaseAwaitingCallback || c.checkout == nil || c.checkout.OrderID != orderID {
		return ErrUnexpectedCallback
	}
	c.phase = phaseIdle
	c.checkout = nil
	return nil
}

func (c *Controller) beginLocked(next phase) error {
	if c.step != StepPayment {
		return ErrWrongStep
	}
	if c.phase.checkoutInFlight() {
		return ErrCheckoutInFlight
	}
	if c.phase != phaseIdle {
		return ErrBusy
	}
	c.phase = next
	return nil
}

func (c *Controller) setNoticeLocked(err error) {
	var (
		ve domain.ValidationError
		ic domain.InvalidCouponError
	)
	switch {
	case errors.As(err, &ve):
		c.notice = Notice{Kind: NoticeValidation, Message: "Please fix the highlighted fields.", Fields: ve.Fields}
	case errors.As(err, &ic):
		c.notice = Notice{Kind: NoticeInvalidCoupon, Message: fmt.Sprintf("Invalid coupon: %s.", ic.Reason)}
	case domain.IsProvider(err):
		c.notice = Notice{Kind: NoticeProvider, Message: "Could not start the payment. Please try again."}
	case domain.IsVerification(err):
		c.notice = Notice{Kind: NoticePaymentFailed, Message: "Payment failed. You can try again."}
	default:
		c.notice = Notice{Kind: NoticeError, Message: "Something went wrong. Please try again."}
	}
}
