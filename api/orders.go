package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/auth"
	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/service/order"
)

type OrderHandler struct {
	service order.OrderUseCase
	log     zerolog.Logger
}

type createOrderRequest struct {
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	CouponCode string `json:"couponCode"`
}

type createOrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   int    `json:"status"`
}

type verifyOrderRequest struct {
	OrderID   string `json:"orderId" binding:"required"`
	PaymentID string `json:"paymentId" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Amount    int64  `json:"amount"`
}

type verifyOrderResponse struct {
	IsOK bool `json:"isOk"`
}

func NewOrderHandler(service order.OrderUseCase, log zerolog.Logger) *OrderHandler {
	return &OrderHandler{service: service, log: log}
}

func (h *OrderHandler) Register(router *gin.RouterGroup) {
	router.POST("/create-order", h.create)
	router.POST("/verify-order", h.verify)
}

func (h *OrderHandler) create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	input := order.CreateOrderInput{
		Amount:         req.Amount,
		CouponCode:     req.CouponCode,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	}
	if claims, ok := auth.ClaimsFrom(c); ok {
		input.Email = claims.Email
	}

	created, err := h.service.CreateOrder(c.Request.Context(), input)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, createOrderResponse{
		OrderID:  created.ID,
		Amount:   created.Amount,
		Currency: created.Currency,
		Status:   http.StatusOK,
	})
}

// verify answers 200 for every decided outcome; the reject reason is only logged.
func (h *OrderHandler) verify(c *gin.Context) {
	var req verifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, verifyOrderResponse{IsOK: false})
		return
	}

	res, err := h.service.Verify(c.Request.Context(), domain.PaymentConfirmation{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    req.Amount,
	})
	var vErr domain.VerificationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusOK, verifyOrderResponse{IsOK: false})
	case err != nil:
		writeError(c, h.log, err)
	default:
		c.JSON(http.StatusOK, verifyOrderResponse{IsOK: res.OK})
	}
}
