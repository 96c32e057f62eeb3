// ==============================================================================
// PAYMENT ORCHESTRATOR - internal/orchestrator/service.go
// ==============================================================================
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vubank/internal/domain"
	pkgerrors "vubank/pkg/errors"
	"vubank/pkg/logger"
)

// RecordStore is the replicated transaction state the orchestrator owns.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec *domain.TransactionRecord) error
	GetRecord(ctx context.Context, txnRef string) (*domain.TransactionRecord, error)
	UpdateRecord(ctx context.Context, txnRef string, mutate func(*domain.TransactionRecord) error) (*domain.TransactionRecord, error)
	SetStatus(ctx context.Context, txnRef string, status domain.TransactionStatus, failureReason string) (*domain.TransactionRecord, error)
	CachedBalance(ctx context.Context, account string) (decimal.Decimal, bool)
	CacheBalance(ctx context.Context, account string, balance decimal.Decimal)
}

// SettlementClient submits the canonical payload and always returns a
// classified outcome.
type SettlementClient interface {
	Submit(ctx context.Context, req *domain.SettlementRequest, userAuth string) *domain.SettlementOutcome
}

// BalanceSource refreshes the advisory balance cache on a miss.
type BalanceSource interface {
	GetBalance(ctx context.Context, account string) (decimal.Decimal, error)
}

// Options carries the orchestrator's tunables.
type Options struct {
	Workers            int
	QueueSize          int
	DefaultBalance     decimal.Decimal
	Currency           string
	DefaultAccountType string
	SettlementTimeout  time.Duration
}

type dispatchJob struct {
	req  *domain.SettlementRequest
	auth string
}

// Service drives a transfer through its lifecycle: persist, validate,
// pre-check funds, and hand off to the settlement dispatch pool. Submission
// returns as soon as the transaction is IN_PROGRESS; the outcome is folded in
// asynchronously.
type Service struct {
	store   RecordStore
	client  SettlementClient
	balance BalanceSource
	logger  logger.Logger
	opts    Options

	jobs chan dispatchJob
	wg   sync.WaitGroup
}

func NewService(store RecordStore, client SettlementClient, balance BalanceSource, opts Options, log logger.Logger) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.SettlementTimeout <= 0 {
		opts.SettlementTimeout = 30 * time.Second
	}
	return &Service{
		store:   store,
		client:  client,
		balance: balance,
		logger:  log,
		opts:    opts,
		jobs:    make(chan dispatchJob, opts.QueueSize),
	}
}

// Start launches the dispatch workers. They drain the queue until Stop.
func (s *Service) Start() {
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Stop closes the dispatch queue and waits for in-flight settlements.
func (s *Service) Stop() {
	close(s.jobs)
	s.wg.Wait()
}

// Submit runs the synchronous half of a transfer. A nil error means the
// transaction is IN_PROGRESS and a settlement call is queued; the sentinel
// errors carry the terminal result alongside.
func (s *Service) Submit(ctx context.Context, instr *domain.PaymentInstruction, userAuth string) (*domain.PaymentResult, error) {
	txnRef := uuid.New().String()
	now := time.Now()

	rec := &domain.TransactionRecord{
		TxnRef:       txnRef,
		Status:       domain.StatusReceived,
		PaymentType:  instr.PaymentType,
		Amount:       instr.Amount,
		PayerAccount: instr.FromAccountNo,
		PayeeAccount: instr.ToAccountNo,
		PayeeName:    instr.PayeeName,
		CustomerName: instr.CustomerName,
		IFSC:         instr.IFSCCode,
		BranchName:   instr.BranchName,
		Comments:     instr.Comments,
		CreatedAt:    now,
		UpdatedAt:    now,
		RequestID:    instr.RequestID,
		APIClient:    instr.APIClient,
	}
	if err := s.store.SaveRecord(ctx, rec); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to persist transaction record")
	}

	s.logger.Info("Transaction received", map[string]interface{}{
		"txn_ref":      txnRef,
		"payment_type": instr.PaymentType,
		"amount":       instr.Amount.String(),
		"request_id":   instr.RequestID,
	})

	// The instruction already passed structural validation upstream.
	if _, err := s.store.SetStatus(ctx, txnRef, domain.StatusValidated, ""); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to mark transaction validated")
	}

	if insufficient := s.checkAdvisoryBalance(ctx, instr); insufficient {
		if _, err := s.store.SetStatus(ctx, txnRef, domain.StatusFailed, domain.ReasonInsufficientBalance); err != nil {
			s.logger.Error("Failed to mark transaction failed", map[string]interface{}{
				"txn_ref": txnRef,
				"error":   err.Error(),
			})
		}
		return &domain.PaymentResult{
			TxnRef: txnRef,
			Status: domain.StatusFailed,
			Reason: domain.ReasonInsufficientBalance,
		}, pkgerrors.ErrInsufficientBalance
	}

	if _, err := s.store.SetStatus(ctx, txnRef, domain.StatusInProgress, ""); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to mark transaction in progress")
	}

	job := dispatchJob{req: s.buildSettlementRequest(txnRef, instr), auth: userAuth}
	select {
	case s.jobs <- job:
	default:
		// Queue saturated: fail fast rather than block the caller.
		s.logger.Error("Dispatch queue full", map[string]interface{}{
			"txn_ref": txnRef,
		})
		if _, err := s.store.SetStatus(ctx, txnRef, domain.StatusFailed, "dispatch queue full"); err != nil {
			s.logger.Error("Failed to mark transaction failed", map[string]interface{}{
				"txn_ref": txnRef,
				"error":   err.Error(),
			})
		}
		return &domain.PaymentResult{
			TxnRef: txnRef,
			Status: domain.StatusFailed,
			Reason: "dispatch queue full",
		}, pkgerrors.ErrDispatchQueueFull
	}

	return &domain.PaymentResult{
		TxnRef: txnRef,
		Status: domain.StatusInProgress,
	}, nil
}

// Status reads the current record and shapes it for callers.
func (s *Service) Status(ctx context.Context, txnRef string) (*domain.PaymentResult, error) {
	rec, err := s.store.GetRecord(ctx, txnRef)
	if err != nil {
		return nil, err
	}

	result := &domain.PaymentResult{
		TxnRef: rec.TxnRef,
		Status: rec.Status,
	}
	switch rec.Status {
	case domain.StatusSuccess, domain.StatusDegraded:
		result.CbsID = rec.CbsID
		result.ApprovedAt = rec.ApprovedAt
		result.Reason = rec.FailureReason
	case domain.StatusFailed:
		result.Reason = rec.FailureReason
	}
	return result, nil
}

// checkAdvisoryBalance consults the cached balance, refreshing it from the
// accounts service on a miss. The check is advisory only: a pass never
// guarantees the later debit succeeds, and an unreachable balance source
// falls back to the configured default rather than blocking the transfer.
func (s *Service) checkAdvisoryBalance(ctx context.Context, instr *domain.PaymentInstruction) bool {
	account := instr.FromAccountNo

	balance, ok := s.store.CachedBalance(ctx, account)
	if !ok {
		fetched, err := s.balance.GetBalance(ctx, account)
		if err != nil {
			s.logger.Warn("Balance refresh failed, using default", map[string]interface{}{
				"account": account,
				"error":   err.Error(),
			})
			fetched = s.opts.DefaultBalance
		}
		balance = fetched
		s.store.CacheBalance(ctx, account, balance)
	}

	return instr.Amount.GreaterThan(balance)
}

func (s *Service) buildSettlementRequest(txnRef string, instr *domain.PaymentInstruction) *domain.SettlementRequest {
	return &domain.SettlementRequest{
		TxnRef:      txnRef,
		PaymentType: instr.PaymentType,
		Amount:      instr.Amount,
		Currency:    s.opts.Currency,
		Payer: domain.SettlementParty{
			Name:        instr.CustomerName,
			AccountNo:   instr.FromAccountNo,
			AccountType: s.opts.DefaultAccountType,
		},
		Payee: domain.SettlementParty{
			Name:      instr.PayeeName,
			AccountNo: instr.ToAccountNo,
			IFSC:      instr.IFSCCode,
		},
		Meta: domain.SettlementMeta{
			BranchName:  instr.BranchName,
			InitiatedAt: instr.InitiatedAt,
			Comments:    instr.Comments,
		},
		Headers: domain.InstructionHeaders{
			XRequestID: instr.RequestID,
			XAPIClient: instr.APIClient,
		},
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for job := range s.jobs {
		s.dispatch(job)
	}
}

func (s *Service) dispatch(job dispatchJob) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic during settlement dispatch", map[string]interface{}{
				"txn_ref": job.req.TxnRef,
				"panic":   fmt.Sprintf("%v", r),
			})
			s.applyFailure(job.req.TxnRef, "internal dispatch error")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SettlementTimeout)
	defer cancel()

	outcome := s.client.Submit(ctx, job.req, job.auth)
	s.applyOutcome(ctx, outcome)
}

// applyOutcome folds a settlement outcome into the record via the store's
// compare-and-set update. Terminal records are never overwritten.
func (s *Service) applyOutcome(ctx context.Context, outcome *domain.SettlementOutcome) {
	_, err := s.store.UpdateRecord(ctx, outcome.TxnRef, func(rec *domain.TransactionRecord) error {
		if rec.Status.Terminal() {
			return pkgerrors.ErrTerminalState
		}

		now := time.Now()
		switch outcome.Status {
		case domain.OutcomeApproved:
			rec.CbsID = outcome.CbsID
			rec.ApprovedAt = outcome.ApprovedAt
			rec.ProcessedAt = &now
			if outcome.Degraded {
				rec.Status = domain.StatusDegraded
				rec.FailureReason = outcome.Reason
			} else {
				rec.Status = domain.StatusSuccess
			}
		default:
			rec.Status = domain.StatusFailed
			rec.FailureReason = outcome.Reason
			rec.ProcessedAt = &now
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to apply settlement outcome", map[string]interface{}{
			"txn_ref": outcome.TxnRef,
			"status":  string(outcome.Status),
			"error":   err.Error(),
		})
		return
	}

	s.logger.Info("Settlement outcome applied", map[string]interface{}{
		"txn_ref":  outcome.TxnRef,
		"status":   string(outcome.Status),
		"degraded": outcome.Degraded,
	})
}

func (s *Service) applyFailure(txnRef, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.store.UpdateRecord(ctx, txnRef, func(rec *domain.TransactionRecord) error {
		if rec.Status.Terminal() {
			return pkgerrors.ErrTerminalState
		}
		rec.Status = domain.StatusFailed
		rec.FailureReason = reason
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to record dispatch failure", map[string]interface{}{
			"txn_ref": txnRef,
			"error":   err.Error(),
		})
	}
}
