package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/domain"
)

const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidation         = "VALIDATION_FAILED"
	CodeInvalidCoupon      = "COUPON_INVALID"
	CodeCouponNotFound     = "COUPON_NOT_FOUND"
	CodeOrderNotFound      = "ORDER_NOT_FOUND"
	CodeProvider           = "PAYMENT_PROVIDER_UNAVAILABLE"
	CodeNotVerified        = "PAYMENT_NOT_VERIFIED"
	CodeConflict           = "CONFLICT"
	CodeForbidden          = "FORBIDDEN"
	CodeRegistrationExists = "REGISTRATION_DUPLICATE"
	CodeInternal           = "INTERNAL"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Status int               `json:"status"`
	Fields map[string]string `json:"fields,omitempty"`
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code, Status: status})
}

// writeError maps domain errors to HTTP responses. Unknown errors are logged and hidden.
func writeError(c *gin.Context, log zerolog.Logger, err error) {
	var (
		ve  domain.ValidationError
		ic  domain.InvalidCouponError
		nf  domain.CouponNotFoundError
		pe  domain.ProviderError
		vfe domain.VerificationError
		ce  domain.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		fields := make(map[string]string, len(ve.Fields))
		for _, f := range ve.Fields {
			fields[f.Field] = f.Msg
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: ve.Error(), Code: CodeValidation, Status: http.StatusBadRequest, Fields: fields})
	case errors.As(err, &ic):
		abort(c, http.StatusBadRequest, CodeInvalidCoupon, ic.Error())
	case errors.As(err, &nf):
		abort(c, http.StatusNotFound, CodeCouponNotFound, nf.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		abort(c, http.StatusNotFound, CodeOrderNotFound, err.Error())
	case errors.As(err, &pe):
		log.Error().Err(err).Msg("payment provider failure")
		abort(c, http.StatusBadGateway, CodeProvider, "payment provider is unavailable, please try again")
	case errors.As(err, &vfe):
		abort(c, http.StatusPaymentRequired, CodeNotVerified, "payment failed")
	case errors.Is(err, domain.ErrRegistrationExists):
		abort(c, http.StatusConflict, CodeRegistrationExists, err.Error())
	case errors.As(err, &ce):
		abort(c, http.StatusConflict, CodeConflict, ce.Error())
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		abort(c, http.StatusInternalServerError, CodeInternal, "Service is currently unavailable. Please try again later.")
	}
}
