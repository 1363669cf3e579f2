package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/service/pricing"
)

type PricingHandler struct {
	service pricing.PricingUseCase
	log     zerolog.Logger
}

type quoteRequest struct {
	CouponCode string `json:"couponCode"`
}

type quoteResponse struct {
	BasePrice      int64 `json:"basePrice"`
	DiscountAmount int64 `json:"discountAmount"`
	FinalPrice     int64 `json:"finalPrice"`
}

func NewPricingHandler(service pricing.PricingUseCase, log zerolog.Logger) *PricingHandler {
	return &PricingHandler{service: service, log: log}
}

func (h *PricingHandler) Register(router *gin.RouterGroup) {
	router.POST("/price", h.quote)
}

func (h *PricingHandler) quote(c *gin.Context) {
	var req quoteRequest
	// An empty body quotes without a coupon.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
	}

	q, err := h.service.Quote(c.Request.Context(), req.CouponCode)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, quoteResponse{BasePrice: q.BasePrice, DiscountAmount: q.DiscountAmount, FinalPrice: q.FinalPrice})
}
