package gateway

import (
	"context"

	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/rs/zerolog"
)

// NagadProvider talks to the Nagad checkout API.
type NagadProvider struct {
	storeReader
	webhookVerifier
	client *httpClient
}

func NewNagad(cfg Config, transactions transaction.Repository, logger zerolog.Logger) *NagadProvider {
	return &NagadProvider{
		storeReader:     storeReader{provider: transaction.ProviderNagad, transactions: transactions},
		webhookVerifier: webhookVerifier{secret: []byte(cfg.AppSecret)},
		client:          newHTTPClient(transaction.ProviderNagad, cfg, logger),
	}
}

func (p *NagadProvider) Name() transaction.Provider { return transaction.ProviderNagad }

type nagadCheckoutRequest struct {
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Intent                string `json:"intent"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber,omitempty"`
	CallbackURL           string `json:"callbackURL,omitempty"`
	PayerReference        string `json:"payerReference,omitempty"`
}

type nagadPaymentResponse struct {
	PaymentID         string `json:"paymentID"`
	RedirectURL       string `json:"redirectURL"`
	TransactionStatus string `json:"transactionStatus"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	CustomerMsisdn    string `json:"customerMsisdn"`
	VerificationID    string `json:"verificationID"`
	ErrorCode         string `json:"errorCode"`
	ErrorMessage      string `json:"errorMessage"`
}

func (p *NagadProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Result, error) {
	var resp nagadPaymentResponse
	err := p.client.post(ctx, "/checkout/create", nagadCheckoutRequest{
		Amount:                formatMajor(req.Amount.Value),
		Currency:              req.Amount.Currency,
		Intent:                "sale",
		MerchantInvoiceNumber: req.InvoiceNumber,
		CallbackURL:           p.client.cfg.CallbackURL,
		PayerReference:        req.PayerReference,
	}, &resp)
	if err != nil {
		return nil, err
	}

	paymentURL := resp.RedirectURL
	if paymentURL == "" {
		paymentURL = p.client.cfg.BaseURL + "/checkout/pay/" + resp.PaymentID
	}
	return &Result{
		TransactionID: resp.PaymentID,
		Status:        nagadStatus(resp.TransactionStatus),
		Amount:        parseMajor(resp.Amount),
		Currency:      resp.Currency,
		PaymentURL:    paymentURL,
		RawStatus:     resp.TransactionStatus,
	}, nil
}

type nagadStatusRequest struct {
	PaymentID string `json:"paymentID"`
}

func (p *NagadProvider) VerifyPayment(ctx context.Context, transactionID string) (*Result, error) {
	var resp nagadPaymentResponse
	err := p.client.post(ctx, "/checkout/payment/status", nagadStatusRequest{
		PaymentID: transactionID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &Result{
		TransactionID: resp.PaymentID,
		Status:        nagadStatus(resp.TransactionStatus),
		Amount:        parseMajor(resp.Amount),
		Currency:      resp.Currency,
		RawStatus:     resp.TransactionStatus,
	}, nil
}

func nagadStatus(s string) transaction.Status {
	switch s {
	case "Success", "Completed":
		return transaction.StatusCompleted
	case "Initiated", "Pending", "Processing":
		return transaction.StatusPending
	default:
		return transaction.StatusFailed
	}
}
