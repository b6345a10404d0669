package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carenet/payments/internal/domain/money"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nagadTestConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		Username:    "merchant",
		Password:    "sandbox-pass",
		AppKey:      "app-key-2",
		AppSecret:   "app-secret-2",
		CallbackURL: "https://carenet.test/api/v1/payments/verify",
		Timeout:     2 * time.Second,
	}
}

func TestNagadCreateCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/create", r.URL.Path)
		assert.Equal(t, "app-key-2", r.Header.Get("X-APP-Key"))

		json.NewEncoder(w).Encode(map[string]any{
			"paymentID":         "NGD82kf1",
			"redirectURL":       "https://sandbox.nagad.com.bd/checkout/pay/NGD82kf1",
			"transactionStatus": "Initiated",
			"amount":            "800.00",
			"currency":          "BDT",
		})
	}))
	defer srv.Close()

	p := NewNagad(nagadTestConfig(srv.URL), nil, zerolog.Nop())
	result, err := p.CreateCheckout(context.Background(), CheckoutRequest{
		Amount: money.Amount{Value: 80000, Currency: "BDT"},
	})
	require.NoError(t, err)

	assert.Equal(t, "NGD82kf1", result.TransactionID)
	assert.Equal(t, transaction.StatusPending, result.Status)
	assert.Equal(t, "https://sandbox.nagad.com.bd/checkout/pay/NGD82kf1", result.PaymentURL)
}

func TestNagadVerifyPayment_StatusMapping(t *testing.T) {
	tests := []struct {
		gatewayStatus string
		want          transaction.Status
	}{
		{"Success", transaction.StatusCompleted},
		{"Completed", transaction.StatusCompleted},
		{"Processing", transaction.StatusPending},
		{"Aborted", transaction.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.gatewayStatus, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"paymentID":         "NGD82kf1",
					"transactionStatus": tt.gatewayStatus,
					"amount":            "800.00",
					"currency":          "BDT",
				})
			}))
			defer srv.Close()

			p := NewNagad(nagadTestConfig(srv.URL), nil, zerolog.Nop())
			result, err := p.VerifyPayment(context.Background(), "NGD82kf1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}
