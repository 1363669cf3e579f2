package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"github.com/tedxreg/registration/internal/domain"
)

// OrderAPI is the part of the razorpay order resource the gateway calls.
type OrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type Gateway struct {
	orders    OrderAPI
	keyID     string
	keySecret string
}

func NewGateway(keyID, keySecret string) *Gateway {
	client := razorpay.NewClient(keyID, keySecret)
	return &Gateway{orders: client.Order, keyID: keyID, keySecret: keySecret}
}

// NewGatewayWithOrders lets tests swap the remote order API.
func NewGatewayWithOrders(orders OrderAPI, keyID, keySecret string) *Gateway {
	return &Gateway{orders: orders, keyID: keyID, keySecret: keySecret}
}

// KeyID is the public key the checkout widget is opened with.
func (g *Gateway) KeyID() string { return g.keyID }

// CreateOrder registers a payment intent. amount is in the currency's subunit.
func (g *Gateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := g.orders.Create(map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}, nil)
	if err != nil {
		return "", domain.ProviderError{Op: "create order", Err: err}
	}
	id, _ := resp["id"].(string)
	if id == "" {
		return "", domain.ProviderError{Op: "create order", Err: fmt.Errorf("response without order id")}
	}
	return id, nil
}

// VerifySignature checks the checkout callback signature with the key secret.
func (g *Gateway) VerifySignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return utils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}, signature, g.keySecret)
}

// Sign produces the signature the provider attaches to a successful payment.
// tedxctl uses it to simulate callbacks against a sandbox deployment.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
