package rpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tedxreg/registration/internal/domain"
)

const (
	kindValidation         = "validation"
	kindInvalidCoupon      = "invalid_coupon"
	kindCouponNotFound     = "coupon_not_found"
	kindProvider           = "provider"
	kindVerification       = "verification"
	kindConflict           = "conflict"
	kindRegistrationExists = "registration_exists"
)

// toStatus encodes a domain error as a gRPC status whose detail lets the
// client rebuild the same error type.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var (
		ve  domain.ValidationError
		ic  domain.InvalidCouponError
		nf  domain.CouponNotFoundError
		pe  domain.ProviderError
		vfe domain.VerificationError
		ce  domain.ConflictError
	)

	var (
		code   codes.Code
		detail map[string]interface{}
	)
	switch {
	case errors.As(err, &ve):
		fields := make([]interface{}, 0, len(ve.Fields))
		for _, f := range ve.Fields {
			fields = append(fields, map[string]interface{}{"field": f.Field, "msg": f.Msg})
		}
		code, detail = codes.InvalidArgument, map[string]interface{}{"kind": kindValidation, "fields": fields}
	case errors.As(err, &ic):
		code, detail = codes.FailedPrecondition, map[string]interface{}{"kind": kindInvalidCoupon, "code": ic.Code, "reason": string(ic.Reason)}
	case errors.As(err, &nf):
		code, detail = codes.NotFound, map[string]interface{}{"kind": kindCouponNotFound, "code": nf.Code}
	case errors.As(err, &pe):
		code, detail = codes.Unavailable, map[string]interface{}{"kind": kindProvider, "op": pe.Op}
	case errors.As(err, &vfe):
		code, detail = codes.PermissionDenied, map[string]interface{}{"kind": kindVerification, "orderId": vfe.OrderID, "reason": string(vfe.Kind)}
	case errors.As(err, &ce):
		code, detail = codes.AlreadyExists, map[string]interface{}{"kind": kindConflict, "resource": ce.Resource, "msg": ce.Msg}
	case errors.Is(err, domain.ErrRegistrationExists):
		code, detail = codes.AlreadyExists, map[string]interface{}{"kind": kindRegistrationExists}
	default:
		return status.Error(codes.Internal, "internal error")
	}

	st := status.New(code, err.Error())
	d, derr := structpb.NewStruct(detail)
	if derr != nil {
		return st.Err()
	}
	if withDetail, derr := st.WithDetails(d); derr == nil {
		st = withDetail
	}
	return st.Err()
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var detail *structpb.Struct
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			detail = s
			break
		}
	}
	if detail == nil {
		return err
	}

	m := detail.AsMap()
	str := func(k string) string {
		v, _ := m[k].(string)
		return v
	}
	switch str("kind") {
	case kindValidation:
		out := domain.ValidationError{}
		list, _ := m["fields"].([]interface{})
		for _, item := range list {
			f, _ := item.(map[string]interface{})
			field, _ := f["field"].(string)
			msg, _ := f["msg"].(string)
			out.Fields = append(out.Fields, domain.FieldError{Field: field, Msg: msg})
		}
		return out
	case kindInvalidCoupon:
		return domain.InvalidCouponError{Code: str("code"), Reason: domain.CouponRejection(str("reason"))}
	case kindCouponNotFound:
		return domain.CouponNotFoundError{Code: str("code")}
	case kindProvider:
		return domain.ProviderError{Op: str("op"), Err: errors.New(st.Message())}
	case kindVerification:
		return domain.VerificationError{OrderID: str("orderId"), Kind: domain.VerificationFailure(str("reason"))}
	case kindConflict:
		return domain.ConflictError{Resource: str("resource"), Msg: str("msg")}
	case kindRegistrationExists:
		return domain.ErrRegistrationExists
	}
	return err
}
