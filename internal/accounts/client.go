// ==============================================================================
// ACCOUNTS CLIENT - internal/accounts/client.go
// ==============================================================================
package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"vubank/internal/domain"
	pkgerrors "vubank/pkg/errors"
	"vubank/pkg/logger"
)

// Client talks to the external accounts collaborator that owns balances. All
// calls are authenticated with a bearer credential: the caller's forwarded
// token when present, otherwise the pre-shared service secret.
type Client struct {
	baseURL    string
	jwtSecret  string
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(baseURL, jwtSecret string, httpClient *http.Client, log logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		jwtSecret:  jwtSecret,
		httpClient: httpClient,
		logger:     log,
	}
}

type updateBalanceRequest struct {
	AccountNumber   string          `json:"accountNumber"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionType string          `json:"transactionType"`
	ReferenceNumber string          `json:"referenceNumber"`
	Description     string          `json:"description"`
}

// Debit moves amount out of the account. The amount is sent negated, per the
// accounts service contract.
func (c *Client) Debit(ctx context.Context, account string, amount decimal.Decimal, referenceNumber, description, auth string) (*domain.BalanceMovement, error) {
	return c.updateBalance(ctx, updateBalanceRequest{
		AccountNumber:   account,
		Amount:          amount.Neg(),
		TransactionType: "DEBIT",
		ReferenceNumber: referenceNumber,
		Description:     description,
	}, auth)
}

// Credit moves amount into the account.
func (c *Client) Credit(ctx context.Context, account string, amount decimal.Decimal, referenceNumber, description, auth string) (*domain.BalanceMovement, error) {
	return c.updateBalance(ctx, updateBalanceRequest{
		AccountNumber:   account,
		Amount:          amount,
		TransactionType: "CREDIT",
		ReferenceNumber: referenceNumber,
		Description:     description,
	}, auth)
}

func (c *Client) updateBalance(ctx context.Context, req updateBalanceRequest, auth string) (*domain.BalanceMovement, error) {
	var movement domain.BalanceMovement
	if err := c.post(ctx, "/internal/accounts/update-balance", req, auth, &movement); err != nil {
		return nil, err
	}

	if movement.Success {
		c.logger.Info("Account balance updated", map[string]interface{}{
			"account":     req.AccountNumber,
			"type":        req.TransactionType,
			"reference":   req.ReferenceNumber,
			"old_balance": movement.OldBalance.String(),
			"new_balance": movement.NewBalance.String(),
			"movement_id": movement.MovementID,
		})
	} else {
		c.logger.Warn("Account balance update refused", map[string]interface{}{
			"account":   req.AccountNumber,
			"type":      req.TransactionType,
			"reference": req.ReferenceNumber,
			"message":   movement.Message,
		})
	}

	return &movement, nil
}

// RecordTransaction writes a history entry. Callers treat failures as
// non-fatal once funds have moved.
func (c *Client) RecordTransaction(ctx context.Context, entry *domain.TransactionHistoryEntry, auth string) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/internal/accounts/transactions", entry, auth, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("accounts service refused history entry: %s", resp.Message)
	}
	return nil
}

// GetBalance fetches the current balance for the advisory cache refresh.
func (c *Client) GetBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	endpoint := c.baseURL + "/internal/accounts/balance?accountNumber=" + url.QueryEscape(account)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Authorization", "Bearer "+c.jwtSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(err, "accounts balance lookup failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("accounts service returned status %d", resp.StatusCode)
	}

	var body struct {
		AccountNumber string          `json:"accountNumber"`
		Balance       decimal.Decimal `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, pkgerrors.Wrap(err, "failed to decode balance response")
	}
	return body.Balance, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, auth string, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode accounts request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.jwtSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(err, "accounts service call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("accounts service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(err, "failed to decode accounts response")
	}
	return nil
}
