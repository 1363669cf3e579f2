package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/service/registration"
)

type RegistrationHandler struct {
	service  registration.RegistrationUseCase
	maxBytes int64
	log      zerolog.Logger
}

type registrationResponse struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	PaymentID       string    `json:"paymentId"`
	Amount          int64     `json:"amount"`
	CouponCode      string    `json:"couponCode,omitempty"`
	CouponContested bool      `json:"couponContested,omitempty"`
	Designation     string    `json:"designation"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	USN             string    `json:"usn,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewRegistrationHandler reads at most maxUploadBytes per file; the
// per-field size rules are enforced by the service.
func NewRegistrationHandler(service registration.RegistrationUseCase, maxUploadBytes int64, log zerolog.Logger) *RegistrationHandler {
	return &RegistrationHandler{service: service, maxBytes: maxUploadBytes, log: log}
}

func (h *RegistrationHandler) Register(router *gin.RouterGroup) {
	router.POST("/registrations", h.record)
}

func (h *RegistrationHandler) RegisterAdmin(router *gin.RouterGroup) {
	router.GET("/registrations", h.list)
}

func (h *RegistrationHandler) record(c *gin.Context) {
	photo, err := h.readUpload(c, "photo")
	if err != nil {
		abort(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	a := domain.Attendee{
		Designation: domain.Designation(strings.TrimSpace(c.PostForm("designation"))),
		Name:        c.PostForm("name"),
		Email:       c.PostForm("email"),
		Phone:       c.PostForm("phone"),
		Photo:       photo,
	}
	if usn, ok := c.GetPostForm("usn"); ok || a.Designation.RequiresStudentCredentials() {
		idCard, err := h.readUpload(c, "idCard")
		if err != nil {
			abort(c, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		if usn != "" || !idCard.Empty() {
			a.Student = &domain.StudentCredentials{USN: usn, IDCard: idCard}
		}
	}

	amount, err := strconv.ParseInt(c.PostForm("amount"), 10, 64)
	if err != nil {
		writeError(c, h.log, domain.NewValidationError("amount", "Invalid format"))
		return
	}

	reg, err := h.service.Record(c.Request.Context(), registration.RecordInput{
		Attendee: a,
		Confirmation: domain.PaymentConfirmation{
			OrderID:   c.PostForm("orderId"),
			PaymentID: c.PostForm("paymentId"),
			Signature: c.PostForm("signature"),
			Amount:    amount,
		},
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toRegistrationResponse(*reg))
}

func (h *RegistrationHandler) list(c *gin.Context) {
	regs, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]registrationResponse, 0, len(regs))
	for _, r := range regs {
		out = append(out, toRegistrationResponse(r))
	}
	c.JSON(http.StatusOK, out)
}

// readUpload returns an empty Upload when the part is absent.
func (h *RegistrationHandler) readUpload(c *gin.Context, field string) (domain.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return domain.Upload{}, nil
		}
		return domain.Upload{}, fmt.Errorf("%s: %w", field, err)
	}
	f, err := fh.Open()
	if err != nil {
		return domain.Upload{}, fmt.Errorf("%s: %w", field, err)
	}
	defer f.Close()

	// One byte past the limit is enough for the validator to report the size.
	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		return domain.Upload{}, fmt.Errorf("%s: %w", field, err)
	}
	return domain.Upload{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}

func toRegistrationResponse(r domain.Registration) registrationResponse {
	resp := registrationResponse{
		ID:              r.ID,
		OrderID:         r.OrderID,
		PaymentID:       r.PaymentID,
		Amount:          r.Amount,
		CouponCode:      r.CouponCode,
		CouponContested: r.CouponContested,
		Designation:     string(r.Attendee.Designation),
		Name:            r.Attendee.Name,
		Email:           r.Attendee.Email,
		Phone:           r.Attendee.Phone,
		CreatedAt:       r.CreatedAt,
	}
	if r.Attendee.Student != nil {
		resp.USN = r.Attendee.Student.USN
	}
	return resp
}
