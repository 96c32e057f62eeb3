// ==============================================================================
// CORE BANKING CLIENT - internal/corebank/client.go
// ==============================================================================
package corebank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vubank/internal/domain"
	"vubank/pkg/logger"
)

// Client issues settlement calls to the core banking engine and classifies
// every outcome into exactly one of APPROVED, REJECTED, or TIMEOUT. It never
// propagates an error: the orchestrator always receives an outcome.
type Client struct {
	baseURL      string
	sharedSecret string
	httpClient   *http.Client
	logger       logger.Logger
}

func NewClient(baseURL, sharedSecret string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:      baseURL,
		sharedSecret: sharedSecret,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       log,
	}
}

// Submit sends the canonical settlement payload. The caller's bearer
// credential is forwarded when present; otherwise the pre-shared service
// secret is used.
func (c *Client) Submit(ctx context.Context, req *domain.SettlementRequest, userAuth string) *domain.SettlementOutcome {
	body, err := json.Marshal(req)
	if err != nil {
		return c.rejected(req.TxnRef, "internal error: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/core/payments", bytes.NewReader(body))
	if err != nil {
		return c.rejected(req.TxnRef, "internal error: "+err.Error())
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", req.Headers.XRequestID)
	httpReq.Header.Set("X-Origin-Service", "payment-process")
	httpReq.Header.Set("X-Txn-Ref", req.TxnRef)

	if userAuth != "" {
		httpReq.Header.Set("Authorization", userAuth)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.sharedSecret)
	}

	c.logger.Info("Calling core banking service", map[string]interface{}{
		"txn_ref": req.TxnRef,
		"amount":  req.Amount.String(),
	})

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Transport-level failure: no reason from the counterparty.
		c.logger.Error("Core banking call failed", map[string]interface{}{
			"txn_ref": req.TxnRef,
			"error":   err.Error(),
		})
		return &domain.SettlementOutcome{
			Status: domain.OutcomeTimeout,
			TxnRef: req.TxnRef,
			Reason: "core banking service timeout",
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.rejected(req.TxnRef, fmt.Sprintf("core banking service returned status %d", resp.StatusCode))
	}

	var cbr domain.CoreBankingResponse
	if err := json.NewDecoder(resp.Body).Decode(&cbr); err != nil {
		return c.rejected(req.TxnRef, "internal error: invalid core banking response")
	}

	return c.classify(req.TxnRef, &cbr)
}

func (c *Client) classify(txnRef string, cbr *domain.CoreBankingResponse) *domain.SettlementOutcome {
	switch cbr.Status {
	case string(domain.CoreStatusApproved):
		return &domain.SettlementOutcome{
			Status:     domain.OutcomeApproved,
			TxnRef:     txnRef,
			CbsID:      cbr.CbsID,
			ApprovedAt: cbr.ApprovedAt,
			Reason:     cbr.Reason,
			// An approval carrying a warning reason means funds movement
			// could not be confirmed.
			Degraded: cbr.Reason != "",
		}
	case string(domain.CoreStatusRejected):
		return &domain.SettlementOutcome{
			Status: domain.OutcomeRejected,
			TxnRef: txnRef,
			CbsID:  cbr.CbsID,
			Reason: cbr.Reason,
		}
	default:
		return c.rejected(txnRef, fmt.Sprintf("unexpected settlement status: %s", cbr.Status))
	}
}

func (c *Client) rejected(txnRef, reason string) *domain.SettlementOutcome {
	c.logger.Error("Settlement call rejected locally", map[string]interface{}{
		"txn_ref": txnRef,
		"reason":  reason,
	})
	return &domain.SettlementOutcome{
		Status: domain.OutcomeRejected,
		TxnRef: txnRef,
		Reason: reason,
	}
}
