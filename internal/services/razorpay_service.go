package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	razorpay "github.com/razorpay/razorpay-go"

	"emi_billing_app/internal/config"
)

// GatewayOrder is the subset of a gateway order the engine consumes
type GatewayOrder struct {
	ID       string  `json:"id"`
	Amount   int64   `json:"amount"` // smallest currency unit (paise)
	Currency string  `json:"currency"`
	Receipt  string  `json:"receipt"`
}

// GatewayPayment is the subset of a fetched gateway payment the engine consumes
type GatewayPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"` // "captured" is the only acceptable status
	Method   string `json:"method"`
	Amount   int64  `json:"amount"`
}

// PaymentGateway is the external gateway capability. The engine only ever
// creates orders, fetches payments and verifies signatures; the capture
// flow itself belongs to the gateway.
type PaymentGateway interface {
	CreateOrder(amount float64, currency, receipt string, notes map[string]interface{}) (*GatewayOrder, error)
	FetchPayment(paymentID string) (*GatewayPayment, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

// RazorpayService wraps the Razorpay SDK behind the PaymentGateway interface
type RazorpayService struct {
	client        *razorpay.Client
	keySecret     string
	webhookSecret string
}

func NewRazorpayService(cfg config.Config) *RazorpayService {
	return &RazorpayService{
		client:        razorpay.NewClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret),
		keySecret:     cfg.RazorpayKeySecret,
		webhookSecret: cfg.RazorpayWebhookSecret,
	}
}

// CreateOrder creates a gateway order for the given rupee amount.
func (s *RazorpayService) CreateOrder(amount float64, currency, receipt string, notes map[string]interface{}) (*GatewayOrder, error) {
	data := map[string]interface{}{
		"amount":   int64(math.Round(amount * 100)),
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	body, err := s.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay order create: %w", err)
	}

	order := &GatewayOrder{
		ID:       stringField(body, "id"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Amount:   int64Field(body, "amount"),
	}
	if order.ID == "" {
		return nil, fmt.Errorf("razorpay order create: response missing order id")
	}
	return order, nil
}

// FetchPayment fetches the gateway's view of a payment.
func (s *RazorpayService) FetchPayment(paymentID string) (*GatewayPayment, error) {
	body, err := s.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay payment fetch: %w", err)
	}

	return &GatewayPayment{
		ID:      stringField(body, "id"),
		OrderID: stringField(body, "order_id"),
		Status:  stringField(body, "status"),
		Method:  stringField(body, "method"),
		Amount:  int64Field(body, "amount"),
	}, nil
}

// VerifyPaymentSignature checks the signature a checkout caller submits
// after capture: HMAC-SHA256 of "<order_id>|<payment_id>" under the key
// secret, hex encoded. Compared in constant time.
func (s *RazorpayService) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	expected := hmacSHA256Hex([]byte(orderID+"|"+paymentID), s.keySecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the header-carried signature of a webhook
// delivery: HMAC-SHA256 of the raw request body under the webhook secret.
func (s *RazorpayService) VerifyWebhookSignature(body []byte, signature string) bool {
	expected := hmacSHA256Hex(body, s.webhookSecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func hmacSHA256Hex(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func int64Field(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
