package gateway

import (
	"testing"

	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"transactionId":"TR0011abc","status":"Completed"}`)
	timestamp := "1756710000"
	v := webhookVerifier{secret: []byte("app-secret-1")}

	valid := SignWebhookPayload("app-secret-1", payload, timestamp)
	require.NoError(t, v.VerifyWebhookSignature(payload, valid, timestamp))
}

func TestVerifyWebhookSignature_Rejections(t *testing.T) {
	payload := []byte(`{"transactionId":"TR0011abc","status":"Completed"}`)
	timestamp := "1756710000"
	v := webhookVerifier{secret: []byte("app-secret-1")}
	valid := SignWebhookPayload("app-secret-1", payload, timestamp)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		timestamp string
	}{
		{"missing signature", payload, "", timestamp},
		{"wrong secret", payload, SignWebhookPayload("other-secret", payload, timestamp), timestamp},
		{"tampered payload", []byte(`{"transactionId":"TR0011abc","status":"Refunded"}`), valid, timestamp},
		{"tampered timestamp", payload, valid, "1756719999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifyWebhookSignature(tt.payload, tt.signature, tt.timestamp)
			assert.ErrorIs(t, err, domainErrors.ErrSignatureInvalid)
		})
	}
}
