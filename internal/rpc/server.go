package rpc

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tedxreg/registration/internal/auth"
	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/service/coupon"
	"github.com/tedxreg/registration/internal/service/order"
	"github.com/tedxreg/registration/internal/service/pricing"
	"github.com/tedxreg/registration/internal/service/registration"
)

// Server exposes the registration use cases over gRPC.
type Server struct {
	pricing       pricing.PricingUseCase
	orders        order.OrderUseCase
	coupons       coupon.CouponUseCase
	registrations registration.RegistrationUseCase
	adminRole     string
	log           zerolog.Logger
}

type ServerOption func(*Server)

// WithAdminRole sets the role allowed to consume a coupon without a paid order.
func WithAdminRole(role string) ServerOption {
	return func(s *Server) {
		s.adminRole = role
	}
}

func NewServer(
	pricing pricing.PricingUseCase,
	orders order.OrderUseCase,
	coupons coupon.CouponUseCase,
	registrations registration.RegistrationUseCase,
	log zerolog.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{pricing: pricing, orders: orders, coupons: coupons, registrations: registrations, adminRole: "ADMIN", log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Quote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := s.pricing.Quote(ctx, str(req, "couponCode"))
	if err != nil {
		return nil, s.fail(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"basePrice":      q.BasePrice,
		"discountAmount": q.DiscountAmount,
		"finalPrice":     q.FinalPrice,
		"couponCode":     q.CouponCode,
	})
}

func (s *Server) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email := str(req, "email")
	if claims, ok := auth.ClaimsFromContext(ctx); ok && email == "" {
		email = claims.Email
	}
	created, err := s.orders.CreateOrder(ctx, order.CreateOrderInput{
		Amount:         num(req, "amount"),
		CouponCode:     str(req, "couponCode"),
		Email:          email,
		IdempotencyKey: str(req, "idempotencyKey"),
	})
	if err != nil {
		return nil, s.fail(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"orderId":  created.ID,
		"amount":   created.Amount,
		"currency": created.Currency,
		"status":   string(created.Status),
	})
}

// VerifyOrder reports rejections in the body, like the HTTP endpoint.
func (s *Server) VerifyOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.orders.Verify(ctx, confirmationFrom(req))
	var vErr domain.VerificationError
	switch {
	case errors.As(err, &vErr):
		return structpb.NewStruct(map[string]interface{}{"isOk": false, "orderId": vErr.OrderID, "reason": string(vErr.Kind)})
	case err != nil:
		return nil, s.fail(err)
	}
	return structpb.NewStruct(map[string]interface{}{"isOk": res.OK, "orderId": res.OrderID, "amount": res.Amount})
}

// InvalidateCoupon consumes a coupon for the paid order named by orderId.
// Without orderId the caller must hold the admin role.
func (s *Server) InvalidateCoupon(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var (
		c   domain.Consumption
		err error
	)
	if str(req, "orderId") != "" {
		c, err = s.coupons.InvalidateForOrder(ctx, str(req, "code"), confirmationFrom(req))
	} else {
		claims, _ := auth.ClaimsFromContext(ctx)
		if !claims.HasRole(s.adminRole) {
			return nil, status.Error(codes.PermissionDenied, "orderId is required to invalidate a coupon")
		}
		c, err = s.coupons.Invalidate(ctx, str(req, "code"))
	}
	if err != nil {
		return nil, s.fail(err)
	}
	return structpb.NewStruct(map[string]interface{}{"success": true, "first": c.First, "orderId": c.OrderID})
}

func (s *Server) RecordRegistration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a, err := attendeeFrom(req)
	if err != nil {
		return nil, s.fail(err)
	}
	reg, err := s.registrations.Record(ctx, registration.RecordInput{Attendee: a, Confirmation: confirmationFrom(req)})
	if err != nil {
		return nil, s.fail(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"registrationId":  reg.ID,
		"orderId":         reg.OrderID,
		"couponContested": reg.CouponContested,
	})
}

func (s *Server) fail(err error) error {
	st := toStatus(err)
	if status.Code(st) == codes.Internal {
		s.log.Error().Err(err).Msg("rpc call failed")
	}
	return st
}

func confirmationFrom(req *structpb.Struct) domain.PaymentConfirmation {
	return domain.PaymentConfirmation{
		OrderID:   str(req, "orderId"),
		PaymentID: str(req, "paymentId"),
		Signature: str(req, "signature"),
		Amount:    num(req, "amount"),
	}
}

func attendeeFrom(req *structpb.Struct) (domain.Attendee, error) {
	photo, err := upload(req, "photo")
	if err != nil {
		return domain.Attendee{}, err
	}
	a := domain.Attendee{
		Designation: domain.Designation(str(req, "designation")),
		Name:        str(req, "name"),
		Email:       str(req, "email"),
		Phone:       str(req, "phone"),
		Photo:       photo,
	}
	if _, ok := req.GetFields()["usn"]; ok {
		idCard, err := upload(req, "idCard")
		if err != nil {
			return domain.Attendee{}, err
		}
		a.Student = &domain.StudentCredentials{USN: str(req, "usn"), IDCard: idCard}
	}
	return a, nil
}

func upload(req *structpb.Struct, field string) (domain.Upload, error) {
	encoded := str(req, field)
	if encoded == "" {
		return domain.Upload{}, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.Upload{}, domain.NewValidationError(field, "Invalid format")
	}
	return domain.Upload{Filename: str(req, field+"Name"), ContentType: str(req, field+"Type"), Data: data}, nil
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func num(s *structpb.Struct, key string) int64 {
	return int64(s.GetFields()[key].GetNumberValue())
}

var _ RegistrationServiceServer = (*Server)(nil)
