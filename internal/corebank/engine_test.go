package corebank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"vubank/internal/domain"
	"vubank/pkg/logger"
)

// Mocks

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateProcessing(ctx context.Context, payment *domain.CorePayment) (bool, error) {
	args := m.Called(ctx, payment)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, cbsID uuid.UUID, status domain.CorePaymentStatus, approvedAt *time.Time) error {
	args := m.Called(ctx, cbsID, status, approvedAt)
	return args.Error(0)
}

func (m *MockRepository) FindByTxnRef(ctx context.Context, txnRef string) (*domain.CorePayment, error) {
	args := m.Called(ctx, txnRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CorePayment), args.Error(1)
}

type MockAccountsClient struct {
	mock.Mock
}

func (m *MockAccountsClient) Debit(ctx context.Context, account string, amount decimal.Decimal, referenceNumber, description, auth string) (*domain.BalanceMovement, error) {
	args := m.Called(ctx, account, amount, referenceNumber, description, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BalanceMovement), args.Error(1)
}

func (m *MockAccountsClient) RecordTransaction(ctx context.Context, entry *domain.TransactionHistoryEntry, auth string) error {
	args := m.Called(ctx, entry, auth)
	return args.Error(0)
}

func newTestEngine(repo Repository, accounts AccountsClient) *Engine {
	engine := NewEngine(repo, accounts, decimal.NewFromInt(100000), 1500*time.Millisecond, logger.NewNop())
	engine.delay = func(ctx context.Context, d time.Duration) error { return nil }
	return engine
}

func settlementRequest(txnRef string, amount int64) *domain.SettlementRequest {
	return &domain.SettlementRequest{
		TxnRef:      txnRef,
		PaymentType: "NEFT",
		Amount:      decimal.NewFromInt(amount),
		Currency:    "INR",
		Payer: domain.SettlementParty{
			Name:        "Anil Sharma",
			AccountNo:   "1234567890",
			AccountType: "SAVINGS",
		},
		Payee: domain.SettlementParty{
			Name:      "Ravi Kumar",
			AccountNo: "0987654321",
			IFSC:      "HDFC0001234",
		},
		Meta: domain.SettlementMeta{
			InitiatedAt: time.Now(),
			Comments:    "Monthly rent",
		},
	}
}

func TestProcess_ApprovedAndDebited(t *testing.T) {
	repo := new(MockRepository)
	accounts := new(MockAccountsClient)
	engine := newTestEngine(repo, accounts)

	repo.On("CreateProcessing", mock.Anything, mock.MatchedBy(func(p *domain.CorePayment) bool {
		return p.TxnRef == "txn-1" && p.Status == domain.CoreStatusProcessing
	})).Return(true, nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything, domain.CoreStatusApproved, mock.Anything).Return(nil)

	newBalance := decimal.NewFromInt(45000)
	accounts.On("Debit", mock.Anything, "1234567890", decimal.NewFromInt(5000), "txn-1", mock.Anything, "").
		Return(&domain.BalanceMovement{
			Success:    true,
			OldBalance: decimal.NewFromInt(50000),
			NewBalance: newBalance,
			MovementID: 42,
		}, nil)
	accounts.On("RecordTransaction", mock.Anything, mock.MatchedBy(func(e *domain.TransactionHistoryEntry) bool {
		return e.ReferenceNumber == "txn-1" && e.BalanceAfter.Equal(newBalance) && e.TransactionType == "debit"
	}), "").Return(nil)

	resp := engine.Process(context.Background(), settlementRequest("txn-1", 5000), "")

	assert.Equal(t, string(domain.CoreStatusApproved), resp.Status)
	assert.Equal(t, "txn-1", resp.TxnRef)
	assert.NotEmpty(t, resp.CbsID)
	assert.NotNil(t, resp.ApprovedAt)
	assert.Empty(t, resp.Reason)
	repo.AssertExpectations(t)
	accounts.AssertExpectations(t)
}

func TestProcess_DuplicateReference(t *testing.T) {
	repo := new(MockRepository)
	accounts := new(MockAccountsClient)
	engine := newTestEngine(repo, accounts)

	repo.On("CreateProcessing", mock.Anything, mock.Anything).Return(false, nil)

	resp := engine.Process(context.Background(), settlementRequest("txn-dup", 5000), "")

	assert.Equal(t, string(domain.CoreStatusRejected), resp.Status)
	assert.Equal(t, "Duplicate transaction reference", resp.Reason)
	accounts.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_AmountExceedsCeiling(t *testing.T) {
	repo := new(MockRepository)
	accounts := new(MockAccountsClient)
	engine := newTestEngine(repo, accounts)

	repo.On("CreateProcessing", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything, domain.CoreStatusRejected, (*time.Time)(nil)).Return(nil)

	resp := engine.Process(context.Background(), settlementRequest("txn-big", 150000), "")

	assert.Equal(t, string(domain.CoreStatusRejected), resp.Status)
	assert.Equal(t, "Amount exceeds transaction limit", resp.Reason)
	accounts.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestProcess_DebitFailureYieldsDegradedApproval(t *testing.T) {
	repo := new(MockRepository)
	accounts := new(MockAccountsClient)
	engine := newTestEngine(repo, accounts)

	repo.On("CreateProcessing", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything, domain.CoreStatusApproved, mock.Anything).Return(nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything, domain.CoreStatusBalanceUpdateFailed, mock.Anything).Return(nil)

	accounts.On("Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	resp := engine.Process(context.Background(), settlementRequest("txn-deg", 5000), "")

	assert.Equal(t, string(domain.CoreStatusApproved), resp.Status)
	assert.Equal(t, balanceUpdateFailedReason, resp.Reason)
	assert.NotNil(t, resp.ApprovedAt)
	accounts.AssertNotCalled(t, "RecordTransaction", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestProcess_DebitRefusedYieldsDegradedApproval(t *testing.T) {
	repo := new(MockRepository)
	accounts := new(MockAccountsClient)
	engine := newTestEngine(repo, accounts)

	repo.On("CreateProcessing", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything, domain.CoreStatusApproved, mock.Anything).Return(nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything, domain.CoreStatusBalanceUpdateFailed, mock.Anything).Return(nil)

	accounts.On("Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.BalanceMovement{Success: false, Message: "insufficient funds"}, nil)

	resp := engine.Process(context.Background(), settlementRequest("txn-ref", 5000), "")

	assert.Equal(t, string(domain.CoreStatusApproved), resp.Status)
	assert.Equal(t, balanceUpdateFailedReason, resp.Reason)
	repo.AssertExpectations(t)
}

func TestProcess_RepositoryErrorRejects(t *testing.T) {
	repo := new(MockRepository)
	accounts := new(MockAccountsClient)
	engine := newTestEngine(repo, accounts)

	repo.On("CreateProcessing", mock.Anything, mock.Anything).Return(false, errors.New("db down"))

	resp := engine.Process(context.Background(), settlementRequest("txn-err", 5000), "")

	assert.Equal(t, string(domain.CoreStatusRejected), resp.Status)
	assert.Equal(t, "Internal processing error", resp.Reason)
}

func TestProcess_InvalidRequest(t *testing.T) {
	repo := new(MockRepository)
	accounts := new(MockAccountsClient)
	engine := newTestEngine(repo, accounts)

	resp := engine.Process(context.Background(), settlementRequest("", 5000), "")
	assert.Equal(t, string(domain.CoreStatusRejected), resp.Status)

	resp = engine.Process(context.Background(), settlementRequest("txn-zero", 0), "")
	assert.Equal(t, string(domain.CoreStatusRejected), resp.Status)
	repo.AssertNotCalled(t, "CreateProcessing", mock.Anything, mock.Anything)
}

func TestProcess_HistoryFailureDoesNotRevertApproval(t *testing.T) {
	repo := new(MockRepository)
	accounts := new(MockAccountsClient)
	engine := newTestEngine(repo, accounts)

	repo.On("CreateProcessing", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything, domain.CoreStatusApproved, mock.Anything).Return(nil)

	accounts.On("Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.BalanceMovement{Success: true, NewBalance: decimal.NewFromInt(1000)}, nil)
	accounts.On("RecordTransaction", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("history unavailable"))

	resp := engine.Process(context.Background(), settlementRequest("txn-hist", 5000), "")

	assert.Equal(t, string(domain.CoreStatusApproved), resp.Status)
	assert.Empty(t, resp.Reason)
}

func TestProcess_CancelledContextRejects(t *testing.T) {
	repo := new(MockRepository)
	accounts := new(MockAccountsClient)
	engine := NewEngine(repo, accounts, decimal.NewFromInt(100000), time.Second, logger.NewNop())

	repo.On("CreateProcessing", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything, domain.CoreStatusRejected, (*time.Time)(nil)).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := engine.Process(ctx, settlementRequest("txn-ctx", 5000), "")

	assert.Equal(t, string(domain.CoreStatusRejected), resp.Status)
	assert.Equal(t, "Internal processing error", resp.Reason)
	repo.AssertExpectations(t)
}
