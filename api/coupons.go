package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/auth"
	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/service/coupon"
)

type CouponHandler struct {
	service   coupon.CouponUseCase
	adminRole string
	log       zerolog.Logger
}

// invalidateCouponRequest without orderId is the administrative form.
type invalidateCouponRequest struct {
	Code      string `json:"code"`
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	Amount    int64  `json:"amount"`
}

type invalidateCouponResponse struct {
	Success bool   `json:"success"`
	First   bool   `json:"first"`
	OrderID string `json:"orderId,omitempty"`
}

type createCouponRequest struct {
	Code      string     `json:"code" binding:"required"`
	Discount  int64      `json:"discount" binding:"required,gt=0"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type couponResponse struct {
	Code       string     `json:"code"`
	Discount   int64      `json:"discount"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NewCouponHandler serves coupon routes. Consuming a coupon without a paid
// order requires adminRole.
func NewCouponHandler(service coupon.CouponUseCase, adminRole string, log zerolog.Logger) *CouponHandler {
	return &CouponHandler{service: service, adminRole: adminRole, log: log}
}

func (h *CouponHandler) Register(router *gin.RouterGroup) {
	router.POST("/invalidate-coupon", h.invalidate)
}

// RegisterAdmin mounts coupon management on an admin-only group.
func (h *CouponHandler) RegisterAdmin(router *gin.RouterGroup) {
	router.GET("/coupons", h.list)
	router.POST("/coupons", h.create)
}

func (h *CouponHandler) invalidate(c *gin.Context) {
	var req invalidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	var (
		res domain.Consumption
		err error
	)
	if req.OrderID != "" {
		res, err = h.service.InvalidateForOrder(c.Request.Context(), req.Code, domain.PaymentConfirmation{
			OrderID:   req.OrderID,
			PaymentID: req.PaymentID,
			Signature: req.Signature,
			Amount:    req.Amount,
		})
	} else {
		if claims, ok := auth.ClaimsFrom(c); !ok || !claims.HasRole(h.adminRole) {
			abort(c, http.StatusForbidden, CodeForbidden, "orderId is required to invalidate a coupon")
			return
		}
		res, err = h.service.Invalidate(c.Request.Context(), req.Code)
	}
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, invalidateCouponResponse{Success: true, First: res.First, OrderID: res.OrderID})
}

func (h *CouponHandler) create(c *gin.Context) {
	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	created, err := h.service.Create(c.Request.Context(), coupon.CreateCouponInput{
		Code:      req.Code,
		Discount:  req.Discount,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toCouponResponse(*created))
}

func (h *CouponHandler) list(c *gin.Context) {
	coupons, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]couponResponse, 0, len(coupons))
	for _, cp := range coupons {
		out = append(out, toCouponResponse(cp))
	}
	c.JSON(http.StatusOK, out)
}

func toCouponResponse(c domain.Coupon) couponResponse {
	return couponResponse{
		Code:       c.Code,
		Discount:   c.Discount,
		ExpiresAt:  c.ExpiresAt,
		ConsumedAt: c.ConsumedAt,
		CreatedAt:  c.CreatedAt,
	}
}
