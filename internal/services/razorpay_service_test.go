package services

import (
	"testing"
)

func TestVerifyPaymentSignature(t *testing.T) {
	svc := &RazorpayService{keySecret: "test_key_secret"}

	orderID := "order_IluGWxBm9U8zJ8"
	paymentID := "pay_IluGWxBm9U8zJ8"
	valid := hmacSHA256Hex([]byte(orderID+"|"+paymentID), "test_key_secret")

	if !svc.VerifyPaymentSignature(orderID, paymentID, valid) {
		t.Error("valid signature rejected")
	}
	if svc.VerifyPaymentSignature(orderID, paymentID, "deadbeef") {
		t.Error("forged signature accepted")
	}
	if svc.VerifyPaymentSignature(orderID, paymentID, "") {
		t.Error("empty signature accepted")
	}
	if svc.VerifyPaymentSignature(paymentID, orderID, valid) {
		t.Error("signature accepted with swapped order and payment IDs")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	svc := &RazorpayService{webhookSecret: "test_webhook_secret"}

	body := []byte(`{"event":"payment.captured","payload":{}}`)
	valid := hmacSHA256Hex(body, "test_webhook_secret")

	if !svc.VerifyWebhookSignature(body, valid) {
		t.Error("valid webhook signature rejected")
	}
	if svc.VerifyWebhookSignature(body, "deadbeef") {
		t.Error("forged webhook signature accepted")
	}
	if svc.VerifyWebhookSignature([]byte(`{"event":"tampered"}`), valid) {
		t.Error("signature accepted for a tampered body")
	}
}

func TestHmacSHA256Hex(t *testing.T) {
	// RFC 4231 test case 2
	got := hmacSHA256Hex([]byte("what do ya want for nothing?"), "Jefe")
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Errorf("hmacSHA256Hex = %s; want %s", got, want)
	}
}
