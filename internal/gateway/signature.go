package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/carenet/payments/internal/domain/errors"
)

// webhookVerifier checks the HMAC-SHA256 signature the gateways attach
// to webhook deliveries. The signature covers payload + "&" + timestamp
// keyed with the provider app secret.
type webhookVerifier struct {
	secret []byte
}

func (v webhookVerifier) VerifyWebhookSignature(payload []byte, signature, timestamp string) error {
	if signature == "" {
		return errors.NewDomainError("signature_missing", "webhook signature missing", errors.ErrSignatureInvalid)
	}
	expected := computeSignature(v.secret, payload, timestamp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.NewDomainError("signature_mismatch", "webhook signature mismatch", errors.ErrSignatureInvalid)
	}
	return nil
}

func computeSignature(secret, payload []byte, timestamp string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	mac.Write([]byte("&"))
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignWebhookPayload computes the signature a gateway would send for
// payload and timestamp. Used by tests and the sandbox tooling.
func SignWebhookPayload(secret string, payload []byte, timestamp string) string {
	return computeSignature([]byte(secret), payload, timestamp)
}
