package receipt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/email"
	"github.com/tedxreg/registration/internal/kafka"
)

type Data struct {
	Name        string
	Email       string
	Designation string
	OrderID     string
	PaymentID   string
	Amount      int64
	Currency    string
	CouponCode  string
	PaidAt      time.Time
}

func FromEvent(e kafka.PaymentEvent) Data {
	return Data{
		Name:        e.Name,
		Email:       e.Email,
		Designation: e.Designation,
		OrderID:     e.OrderID,
		PaymentID:   e.PaymentID,
		Amount:      e.Amount,
		Currency:    e.Currency,
		CouponCode:  e.CouponCode,
		PaidAt:      e.OccurredAt,
	}
}

// Render builds a one-page A4 payment receipt.
func Render(d Data) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("TEDx Registration Receipt", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "TEDx REGISTRATION RECEIPT")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		"Name         : " + safe(d.Name),
		"Email        : " + safe(d.Email),
		"Category     : " + safe(capitalize(d.Designation)),
		"Order ID     : " + safe(d.OrderID),
		"Payment ID   : " + safe(d.PaymentID),
		"Paid on      : " + d.PaidAt.Format("2006-01-02 15:04 MST"),
	}
	if d.CouponCode != "" {
		lines = append(lines, "Coupon       : "+d.CouponCode)
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Amount paid: "+formatAmount(d.Amount, d.Currency))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "This receipt admits one attendee. Please carry a photo id matching the registration.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func formatAmount(amount int64, currency string) string {
	if currency == "" {
		currency = "INR"
	}
	return fmt.Sprintf("%s %d.00", currency, amount)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func safe(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

type Sender interface {
	Send(ctx context.Context, msg email.Message) error
}

// Mailer e-mails a rendered receipt for each completed registration.
type Mailer struct {
	sender Sender
	log    zerolog.Logger
}

func NewMailer(sender Sender, log zerolog.Logger) *Mailer {
	return &Mailer{sender: sender, log: log}
}

func (m *Mailer) Handle(ctx context.Context, e kafka.PaymentEvent) error {
	if e.Email == "" {
		m.log.Warn().Str("order_id", e.OrderID).Msg("registration event without email")
		return nil
	}
	d := FromEvent(e)
	pdf, err := Render(d)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, email.Message{
		To:      d.Email,
		ToName:  d.Name,
		Subject: "Your TEDx registration is confirmed",
		Text: fmt.Sprintf("Hi %s,\n\nWe received %s for order %s. Your receipt is attached.\n\nSee you at TEDx!",
			safe(d.Name), formatAmount(d.Amount, d.Currency), d.OrderID),
		Attachments: []email.Attachment{{Filename: "tedx-receipt-" + d.OrderID + ".pdf", Data: pdf}},
	})
}
