package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/rs/zerolog"
)

// Config carries one gateway's credentials and endpoints.
type Config struct {
	BaseURL     string
	Username    string
	Password    string
	AppKey      string
	AppSecret   string
	CallbackURL string
	Timeout     time.Duration
}

// httpClient wraps the HTTP plumbing shared by the gateway adapters:
// auth headers, JSON codec and the mapping of transport and gateway
// failures onto GatewayError.
type httpClient struct {
	provider transaction.Provider
	cfg      Config
	client   *http.Client
	logger   zerolog.Logger
}

func newHTTPClient(provider transaction.Provider, cfg Config, logger zerolog.Logger) *httpClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		provider: provider,
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("gateway", string(provider)).Logger(),
	}
}

type gatewayErrorResponse struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	StatusCode   string `json:"statusCode"`
}

func (c *httpClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.NewGatewayError(string(c.provider), "encode_failed", "failed to encode request", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.NewGatewayError(string(c.provider), "request_failed", "failed to build request", false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+basicAuth(c.cfg.Username, c.cfg.Password))
	req.Header.Set("X-APP-Key", c.cfg.AppKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("gateway request failed")
		return errors.NewGatewayError(string(c.provider), "network_error", "gateway unreachable", true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errors.NewGatewayError(string(c.provider), "server_error",
			fmt.Sprintf("gateway returned %d", resp.StatusCode), true, nil)
	}
	if resp.StatusCode >= 400 {
		var gwErr gatewayErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&gwErr)
		msg := gwErr.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("gateway returned %d", resp.StatusCode)
		}
		return errors.NewGatewayError(string(c.provider), gwErr.ErrorCode, msg, false, nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewGatewayError(string(c.provider), "decode_failed", "failed to decode response", true, err)
	}
	return nil
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// formatMajor renders minor units as the major-unit decimal string the
// gateways expect, e.g. 150050 -> "1500.50".
func formatMajor(v int64) string {
	whole := v / 100
	frac := v % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}

// parseMajor converts a gateway's decimal amount string to minor units.
func parseMajor(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if f >= 0 {
		return int64(f*100 + 0.5)
	}
	return int64(f*100 - 0.5)
}

// storeReader implements the store-facing half of Provider. Reads are
// scoped to one provider's transactions.
type storeReader struct {
	provider     transaction.Provider
	transactions transaction.Repository
}

func (s storeReader) GetTransaction(ctx context.Context, transactionID string) (*transaction.ProviderTransaction, error) {
	return s.transactions.GetByTransactionID(ctx, s.provider, transactionID)
}

func (s storeReader) ListTransactions(ctx context.Context, limit, offset int) ([]*transaction.ProviderTransaction, error) {
	provider := s.provider
	return s.transactions.List(ctx, transaction.ListFilter{
		Provider: &provider,
		Limit:    limit,
		Offset:   offset,
	})
}
