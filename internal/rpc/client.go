package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tedxreg/registration/internal/domain"
	"github.com/tedxreg/registration/internal/workflow"
)

// Client calls the registration service and satisfies workflow.Backend.
type Client struct {
	conn     grpc.ClientConnInterface
	token    string
	callOpts []grpc.CallOption
}

type ClientOption func(*Client)

// WithSessionToken sends token as a bearer credential on every call.
func WithSessionToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithMaxSendSize raises the per-call request limit; see MaxMessageSize.
func WithMaxSendSize(bytes int) ClientOption {
	return func(c *Client) {
		c.callOpts = append(c.callOpts, grpc.MaxCallSendMsgSize(bytes))
	}
}

func NewClient(conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{conn: conn}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial opens a connection to target. The caller closes the returned conn.
func Dial(target string, dialOpts []grpc.DialOption, opts ...ClientOption) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return NewClient(conn, opts...), conn, nil
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]interface{}) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, out, c.callOpts...); err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

func (c *Client) Quote(ctx context.Context, couponCode string) (domain.PriceQuote, error) {
	out, err := c.invoke(ctx, MethodQuote, map[string]interface{}{"couponCode": couponCode})
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return domain.PriceQuote{
		BasePrice:      num(out, "basePrice"),
		DiscountAmount: num(out, "discountAmount"),
		FinalPrice:     num(out, "finalPrice"),
		CouponCode:     str(out, "couponCode"),
	}, nil
}

func (c *Client) CreateOrder(ctx context.Context, req workflow.OrderRequest) (string, error) {
	out, err := c.invoke(ctx, MethodCreateOrder, map[string]interface{}{
		"amount":         req.Amount,
		"couponCode":     req.CouponCode,
		"email":          req.Email,
		"idempotencyKey": req.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}
	return str(out, "orderId"), nil
}

func (c *Client) Verify(ctx context.Context, conf domain.PaymentConfirmation) (domain.VerificationResult, error) {
	out, err := c.invoke(ctx, MethodVerifyOrder, confirmationFields(conf))
	if err != nil {
		return domain.VerificationResult{OrderID: conf.OrderID}, err
	}
	if !out.GetFields()["isOk"].GetBoolValue() {
		return domain.VerificationResult{OrderID: conf.OrderID}, domain.VerificationError{
			OrderID: conf.OrderID,
			Kind:    domain.VerificationFailure(str(out, "reason")),
		}
	}
	return domain.VerificationResult{OrderID: str(out, "orderId"), OK: true, Amount: num(out, "amount")}, nil
}

// InvalidateCoupon consumes code for the order in conf. A zero conf uses the
// administrative form, which needs an admin session.
func (c *Client) InvalidateCoupon(ctx context.Context, code string, conf domain.PaymentConfirmation) (domain.Consumption, error) {
	in := map[string]interface{}{"code": code}
	if conf.OrderID != "" {
		in = confirmationFields(conf)
		in["code"] = code
	}
	out, err := c.invoke(ctx, MethodInvalidateCoupon, in)
	if err != nil {
		return domain.Consumption{}, err
	}
	return domain.Consumption{Code: code, First: out.GetFields()["first"].GetBoolValue(), OrderID: str(out, "orderId")}, nil
}

func (c *Client) RecordRegistration(ctx context.Context, req workflow.RegistrationRequest) error {
	a := req.Attendee
	in := confirmationFields(req.Confirmation)
	in["designation"] = string(a.Designation)
	in["name"] = a.Name
	in["email"] = a.Email
	in["phone"] = a.Phone
	putUpload(in, "photo", a.Photo)
	if a.Student != nil {
		in["usn"] = a.Student.USN
		putUpload(in, "idCard", a.Student.IDCard)
	}
	_, err := c.invoke(ctx, MethodRecordRegistration, in)
	return err
}

func confirmationFields(conf domain.PaymentConfirmation) map[string]interface{} {
	return map[string]interface{}{
		"orderId":   conf.OrderID,
		"paymentId": conf.PaymentID,
		"signature": conf.Signature,
		"amount":    conf.Amount,
	}
}

// putUpload stores data base64-encoded, which is how structpb encodes []byte.
func putUpload(in map[string]interface{}, field string, u domain.Upload) {
	if u.Empty() {
		return
	}
	in[field] = u.Data
	in[field+"Name"] = u.Filename
	in[field+"Type"] = u.ContentType
}

var _ workflow.Backend = (*Client)(nil)
