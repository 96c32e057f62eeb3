// ==============================================================================
// CORE BANKING ENGINE - internal/corebank/engine.go
// ==============================================================================
package corebank

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vubank/internal/domain"
	"vubank/pkg/logger"
)

// Repository persists settlement records. CreateProcessing must be first
// writer wins on the transaction reference.
type Repository interface {
	CreateProcessing(ctx context.Context, payment *domain.CorePayment) (bool, error)
	UpdateStatus(ctx context.Context, cbsID uuid.UUID, status domain.CorePaymentStatus, approvedAt *time.Time) error
	FindByTxnRef(ctx context.Context, txnRef string) (*domain.CorePayment, error)
}

// AccountsClient is the funds-movement collaborator.
type AccountsClient interface {
	Debit(ctx context.Context, account string, amount decimal.Decimal, referenceNumber, description, auth string) (*domain.BalanceMovement, error)
	RecordTransaction(ctx context.Context, entry *domain.TransactionHistoryEntry, auth string) error
}

// DelayFunc is the schedulable clearing-delay stage. Production uses a timer;
// tests inject a no-op.
type DelayFunc func(ctx context.Context, d time.Duration) error

func waitDelay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Engine is the authoritative settlement processor: duplicate-reference
// guard, approval policy, minimum clearing delay, and the debit against the
// payer account with an explicit degraded outcome when the debit cannot be
// confirmed.
type Engine struct {
	repo          Repository
	accounts      AccountsClient
	logger        logger.Logger
	amountCeiling decimal.Decimal
	clearingDelay time.Duration
	delay         DelayFunc
}

func NewEngine(repo Repository, accounts AccountsClient, amountCeiling decimal.Decimal, clearingDelay time.Duration, log logger.Logger) *Engine {
	return &Engine{
		repo:          repo,
		accounts:      accounts,
		logger:        log,
		amountCeiling: amountCeiling,
		clearingDelay: clearingDelay,
		delay:         waitDelay,
	}
}

const balanceUpdateFailedReason = "Payment approved but balance update failed - please contact support"

// Process settles a transaction reference the engine has never seen before.
// It always returns a response; unhandled failures map to a REJECTED outcome
// and never leave a record in PROCESSING.
func (e *Engine) Process(ctx context.Context, req *domain.SettlementRequest, auth string) (resp *domain.CoreBankingResponse) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic while processing settlement", map[string]interface{}{
				"txn_ref": req.TxnRef,
				"panic":   fmt.Sprintf("%v", r),
			})
			resp = &domain.CoreBankingResponse{
				Status: string(domain.CoreStatusRejected),
				TxnRef: req.TxnRef,
				Reason: "Internal processing error",
			}
		}
	}()

	if req.TxnRef == "" || !req.Amount.IsPositive() {
		return &domain.CoreBankingResponse{
			Status: string(domain.CoreStatusRejected),
			TxnRef: req.TxnRef,
			Reason: "Invalid settlement request",
		}
	}

	payment := e.newCorePayment(req)

	created, err := e.repo.CreateProcessing(ctx, payment)
	if err != nil {
		e.logger.Error("Failed to create settlement record", map[string]interface{}{
			"txn_ref": req.TxnRef,
			"error":   err.Error(),
		})
		return &domain.CoreBankingResponse{
			Status: string(domain.CoreStatusRejected),
			TxnRef: req.TxnRef,
			Reason: "Internal processing error",
		}
	}
	if !created {
		// Sole consistency guard against double settlement on this side.
		e.logger.Warn("Duplicate transaction reference", map[string]interface{}{
			"txn_ref": req.TxnRef,
		})
		return &domain.CoreBankingResponse{
			Status: string(domain.CoreStatusRejected),
			TxnRef: req.TxnRef,
			Reason: "Duplicate transaction reference",
		}
	}

	e.logger.Info("Started settlement processing", map[string]interface{}{
		"txn_ref": req.TxnRef,
		"cbs_id":  payment.CbsID.String(),
		"amount":  req.Amount.String(),
	})

	// Minimum clearing delay before concluding approval.
	if err := e.delay(ctx, e.clearingDelay); err != nil {
		_ = e.repo.UpdateStatus(ctx, payment.CbsID, domain.CoreStatusRejected, nil)
		return &domain.CoreBankingResponse{
			Status: string(domain.CoreStatusRejected),
			TxnRef: req.TxnRef,
			CbsID:  payment.CbsID.String(),
			Reason: "Internal processing error",
		}
	}

	if req.Amount.GreaterThan(e.amountCeiling) {
		if err := e.repo.UpdateStatus(ctx, payment.CbsID, domain.CoreStatusRejected, nil); err != nil {
			e.logger.Error("Failed to mark settlement rejected", map[string]interface{}{
				"txn_ref": req.TxnRef,
				"error":   err.Error(),
			})
		}
		e.logger.Warn("Settlement rejected: amount exceeds limit", map[string]interface{}{
			"txn_ref": req.TxnRef,
			"amount":  req.Amount.String(),
			"ceiling": e.amountCeiling.String(),
		})
		return &domain.CoreBankingResponse{
			Status: string(domain.CoreStatusRejected),
			TxnRef: req.TxnRef,
			CbsID:  payment.CbsID.String(),
			Reason: "Amount exceeds transaction limit",
		}
	}

	approvedAt := time.Now()
	if err := e.repo.UpdateStatus(ctx, payment.CbsID, domain.CoreStatusApproved, &approvedAt); err != nil {
		e.logger.Error("Failed to persist approval", map[string]interface{}{
			"txn_ref": req.TxnRef,
			"error":   err.Error(),
		})
		_ = e.repo.UpdateStatus(ctx, payment.CbsID, domain.CoreStatusRejected, nil)
		return &domain.CoreBankingResponse{
			Status: string(domain.CoreStatusRejected),
			TxnRef: req.TxnRef,
			CbsID:  payment.CbsID.String(),
			Reason: "Internal processing error",
		}
	}

	e.logger.Info("Settlement approved", map[string]interface{}{
		"txn_ref": req.TxnRef,
		"cbs_id":  payment.CbsID.String(),
	})

	description := fmt.Sprintf("Fund Transfer to %s - %s", req.Payee.Name, req.Meta.Comments)

	movement, err := e.accounts.Debit(ctx, req.Payer.AccountNo, req.Amount, req.TxnRef, description, auth)
	if err != nil || !movement.Success {
		// The approval stands: funds movement could not be confirmed, which
		// must be surfaced distinctly for downstream reconciliation.
		if err != nil {
			e.logger.Error("Debit call failed after approval", map[string]interface{}{
				"txn_ref": req.TxnRef,
				"account": req.Payer.AccountNo,
				"error":   err.Error(),
			})
		} else {
			e.logger.Error("Debit refused after approval", map[string]interface{}{
				"txn_ref": req.TxnRef,
				"account": req.Payer.AccountNo,
				"message": movement.Message,
			})
		}

		if err := e.repo.UpdateStatus(ctx, payment.CbsID, domain.CoreStatusBalanceUpdateFailed, &approvedAt); err != nil {
			e.logger.Error("Failed to persist degraded settlement status", map[string]interface{}{
				"txn_ref": req.TxnRef,
				"error":   err.Error(),
			})
		}

		return &domain.CoreBankingResponse{
			Status:     string(domain.CoreStatusApproved),
			TxnRef:     req.TxnRef,
			CbsID:      payment.CbsID.String(),
			ApprovedAt: &approvedAt,
			Reason:     balanceUpdateFailedReason,
		}
	}

	// Best-effort history entry with the authoritative post-debit balance.
	// Failure never reverts the approval: funds already moved.
	entry := &domain.TransactionHistoryEntry{
		AccountNumber:   req.Payer.AccountNo,
		TransactionType: "debit",
		Amount:          req.Amount,
		Description:     description,
		ReferenceNumber: req.TxnRef,
		BalanceAfter:    movement.NewBalance,
		Status:          "completed",
	}
	if err := e.accounts.RecordTransaction(ctx, entry, auth); err != nil {
		e.logger.Warn("Failed to record transaction history", map[string]interface{}{
			"txn_ref": req.TxnRef,
			"account": req.Payer.AccountNo,
			"error":   err.Error(),
		})
	}

	return &domain.CoreBankingResponse{
		Status:     string(domain.CoreStatusApproved),
		TxnRef:     req.TxnRef,
		CbsID:      payment.CbsID.String(),
		ApprovedAt: &approvedAt,
	}
}

// Lookup returns the settlement record for a transaction reference.
func (e *Engine) Lookup(ctx context.Context, txnRef string) (*domain.CorePayment, error) {
	return e.repo.FindByTxnRef(ctx, txnRef)
}

func (e *Engine) newCorePayment(req *domain.SettlementRequest) *domain.CorePayment {
	now := time.Now()
	initiatedAt := req.Meta.InitiatedAt
	if initiatedAt.IsZero() {
		initiatedAt = now
	}

	payment := &domain.CorePayment{
		CbsID:        uuid.New(),
		TxnRef:       req.TxnRef,
		Status:       domain.CoreStatusProcessing,
		Amount:       req.Amount,
		Currency:     req.Currency,
		PayerAccount: req.Payer.AccountNo,
		PayeeAccount: req.Payee.AccountNo,
		IFSC:         req.Payee.IFSC,
		PaymentType:  req.PaymentType,
		Comments:     req.Meta.Comments,
		InitiatedAt:  initiatedAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if raw, err := json.Marshal(req); err == nil {
		payment.RawJSON = raw
	} else {
		e.logger.Warn("Failed to snapshot raw settlement payload", map[string]interface{}{
			"txn_ref": req.TxnRef,
			"error":   err.Error(),
		})
	}

	return payment
}
