package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

type Signer struct {
	keySecret     []byte
	webhookSecret []byte
}

func NewSigner(keySecret, webhookSecret string) *Signer {
	return &Signer{
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(webhookSecret),
	}
}

// PaymentSignature is what the checkout SDK hands back to the browser after
// a successful payment.
func (s *Signer) PaymentSignature(gatewayOrderID, paymentID string) string {
	return sign(s.keySecret, []byte(gatewayOrderID+"|"+paymentID))
}

func (s *Signer) WebhookSignature(body []byte) string {
	return sign(s.webhookSecret, body)
}

func (s *Signer) VerifyPayment(gatewayOrderID, paymentID, signature string) error {
	return verify(s.PaymentSignature(gatewayOrderID, paymentID), signature)
}

func (s *Signer) VerifyWebhook(body []byte, signature string) error {
	return verify(s.WebhookSignature(body), signature)
}

func sign(secret, msg []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(expected, got string) error {
	if got == "" || !hmac.Equal([]byte(expected), []byte(got)) {
		return ErrInvalidSignature
	}
	return nil
}
