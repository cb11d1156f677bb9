// Package chain queries on-chain token balances for token-gated offers.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/creatorhub/creator-ledger/internal/config"
)

// ErrUnavailable marks transient oracle failures.
var ErrUnavailable = errors.New("chain oracle unavailable")

type Oracle struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewOracle(cfg config.OracleConfig, logger *zap.SugaredLogger) *Oracle {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Oracle{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		log:     logger,
	}
}

// TokenBalance returns the address's holding of the token, scaled down by
// decimals. found is false when the address holds no position at all.
func (o *Oracle) TokenBalance(ctx context.Context, address, tokenID string, decimals int) (decimal.Decimal, bool, error) {
	url := fmt.Sprintf("%s/v2/accounts/%s/assets/%s", o.baseURL, address, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, false, err
	}
	req.Header.Set("X-API-Key", o.apiKey)

	resp, err := o.http.Do(req)
	if err != nil {
		o.log.Warnf("oracle balance lookup %s: %v", address, err)
		return decimal.Zero, false, fmt.Errorf("token balance lookup: %w", ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, false, fmt.Errorf("token balance lookup: status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var out struct {
		AssetHolding *struct {
			Amount int64 `json:"amount"`
		} `json:"asset-holding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, false, fmt.Errorf("decode balance response: %w", err)
	}
	if out.AssetHolding == nil {
		return decimal.Zero, false, nil
	}
	return decimal.New(out.AssetHolding.Amount, -int32(decimals)), true, nil
}
