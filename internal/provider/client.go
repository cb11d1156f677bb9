// Package provider wraps the custodial payment service's HTTPS API. The
// client is constructed once at startup and injected into every component
// that calls out.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/creatorhub/creator-ledger/internal/config"
	"github.com/creatorhub/creator-ledger/internal/model"
)

// ErrUnavailable marks transient provider failures. Callers retry on the
// next cycle rather than surfacing a permanent error.
var ErrUnavailable = errors.New("payment provider unavailable")

// Endpoint is one side of a provider transfer.
type Endpoint struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Address string `json:"address,omitempty"`
	Chain   string `json:"chain,omitempty"`
}

func WalletEndpoint(id string) Endpoint {
	return Endpoint{Type: "wallet", ID: id}
}

func BlockchainEndpoint(address string, chain model.Chain) Endpoint {
	return Endpoint{Type: "blockchain", Address: address, Chain: string(chain)}
}

type Balance struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

type WalletInfo struct {
	WalletID string    `json:"walletId"`
	Balances []Balance `json:"balances"`
}

// USDBalance returns the USD entry, if any.
func (w *WalletInfo) USDBalance() (decimal.Decimal, bool) {
	for _, b := range w.Balances {
		if b.Currency != "USD" {
			continue
		}
		amount, err := decimal.NewFromString(b.Amount)
		if err != nil {
			return decimal.Zero, false
		}
		return amount, true
	}
	return decimal.Zero, false
}

// TransferReceipt is the provider's acknowledgement of an initiated
// transfer. Raw keeps the full payload for transaction metadata.
type TransferReceipt struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"-"`
}

type Client struct {
	apiKey         string
	baseURL        string
	masterWalletID string
	http           *http.Client
	log            *zap.SugaredLogger
}

func NewClient(cfg config.ProviderConfig, logger *zap.SugaredLogger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        cfg.BaseURL,
		masterWalletID: cfg.MasterWalletID,
		http:           &http.Client{Timeout: timeout},
		log:            logger,
	}
}

// MasterWalletID is the custodial wallet deposits are consolidated into.
func (c *Client) MasterWalletID() string { return c.masterWalletID }

func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "ping", nil, &out); err != nil {
		return err
	}
	if out.Message != "pong" {
		return fmt.Errorf("unexpected ping response %q: %w", out.Message, ErrUnavailable)
	}
	return nil
}

// CreateWallet provisions a custodial wallet and returns its provider id.
// The idempotency key makes retries safe.
func (c *Client) CreateWallet(ctx context.Context, idempotencyKey, description string) (string, error) {
	body := map[string]interface{}{
		"idempotencyKey": idempotencyKey,
		"description":    description,
	}
	var out struct {
		WalletID string `json:"walletId"`
	}
	if err := c.do(ctx, http.MethodPost, "v1/wallets", body, &out); err != nil {
		return "", err
	}
	return out.WalletID, nil
}

// CreateAddress requests a deposit address on chain for the wallet.
func (c *Client) CreateAddress(ctx context.Context, walletID string, chain model.Chain) (string, error) {
	body := map[string]interface{}{
		"idempotencyKey": uuid.NewString(),
		"currency":       "USD",
		"chain":          string(chain),
	}
	var out struct {
		Address string `json:"address"`
	}
	endpoint := fmt.Sprintf("v1/wallets/%s/addresses", walletID)
	if err := c.do(ctx, http.MethodPost, endpoint, body, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

func (c *Client) GetWalletInfo(ctx context.Context, walletID string) (*WalletInfo, error) {
	var out WalletInfo
	if err := c.do(ctx, http.MethodGet, "v1/wallets/"+walletID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transfer instructs the provider to move funds between the given
// endpoints. No local balance is touched here.
func (c *Client) Transfer(ctx context.Context, source, destination Endpoint, amount decimal.Decimal) (*TransferReceipt, error) {
	body := map[string]interface{}{
		"idempotencyKey": uuid.NewString(),
		"source":         source,
		"destination":    destination,
		"amount": map[string]string{
			"amount":   amount.StringFixed(2),
			"currency": "USD",
		},
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "v1/transfers", body, &raw); err != nil {
		return nil, err
	}
	var receipt TransferReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("decode transfer receipt: %w", err)
	}
	receipt.Raw = raw
	return &receipt, nil
}

const defaultTimeout = 10 * time.Second

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnf("provider %s %s: %v", method, endpoint, err)
		return fmt.Errorf("%s %s: %w", method, endpoint, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warnf("provider %s %s: status %d", method, endpoint, resp.StatusCode)
		return fmt.Errorf("%s %s: status %d: %w", method, endpoint, resp.StatusCode, ErrUnavailable)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}
