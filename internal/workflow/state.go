package workflow

import "github.com/tedxreg/registration/internal/domain"

type Step string

const (
	StepDesignation Step = "designation"
	StepDetails     Step = "details"
	StepPayment     Step = "payment"
	StepSuccess     Step = "success"
)

type phase int

const (
	phaseIdle phase = iota
	phaseQuoting
	phaseCreatingOrder
	phaseAwaitingCallback
	phaseVerifying
)

func (p phase) checkoutInFlight() bool {
	return p == phaseCreatingOrder || p == phaseAwaitingCallback || p == phaseVerifying
}

type NoticeKind string

const (
	NoticeNone          NoticeKind = ""
	NoticeInfo          NoticeKind = "info"
	NoticeValidation    NoticeKind = "validation"
	NoticeInvalidCoupon NoticeKind = "invalid_coupon"
	NoticeProvider      NoticeKind = "provider"
	NoticePaymentFailed NoticeKind = "payment_failed"
	NoticeFollowUp      NoticeKind = "follow_up"
	NoticeError         NoticeKind = "error"
)

// Notice is what the UI shows after the last operation.
type Notice struct {
	Kind    NoticeKind
	Message string
	Fields  []domain.FieldError
}

// Details is the second-step form. Student is only read for students.
type Details struct {
	Name    string
	Email   string
	Phone   string
	Photo   domain.Upload
	Student *domain.StudentCredentials
}

type Prefill struct {
	Name    string
	Email   string
	Contact string
}

// Checkout carries what the embedded provider widget needs to open.
type Checkout struct {
	KeyID          string
	OrderID        string
	AmountSubunits int64
	Currency       string
	Description    string
	Prefill        Prefill
	IdempotencyKey string
}

// PaymentCallback is the provider's success handler payload.
type PaymentCallback struct {
	OrderID   string
	PaymentID string
	Signature string
}

type Snapshot struct {
	Step        Step
	Designation domain.Designation
	Attendee    domain.Attendee
	Quote       *domain.PriceQuote
	CouponCode  string
	Checkout    *Checkout
	InFlight    bool
	Notice      Notice
	// OrderID of the paid order once Step is StepSuccess.
	PaidOrderID string
}
