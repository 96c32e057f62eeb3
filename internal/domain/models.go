// ==============================================================================
// DOMAIN MODELS - internal/domain/models.go
// ==============================================================================
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus represents the orchestrator-side lifecycle states.
type TransactionStatus string

const (
	StatusReceived   TransactionStatus = "RECEIVED"
	StatusValidated  TransactionStatus = "VALIDATED"
	StatusInProgress TransactionStatus = "IN_PROGRESS"
	StatusSuccess    TransactionStatus = "SUCCESS"
	StatusFailed     TransactionStatus = "FAILED"
	StatusDegraded   TransactionStatus = "DEGRADED"
)

// Terminal reports whether no further transition may leave the status.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusDegraded:
		return true
	}
	return false
}

// Failure reasons surfaced on FAILED records.
const (
	ReasonValidationError     = "VALIDATION_ERROR"
	ReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
)

// PaymentInstruction is the canonical request produced from an inbound
// transfer instruction. Validation tags are evaluated in field order so the
// first violated constraint is the one reported.
type PaymentInstruction struct {
	PayeeName     string          `json:"payee_name" validate:"required"`
	IFSCCode      string          `json:"ifsc_code" validate:"required,ifsc"`
	PaymentType   string          `json:"payment_type" validate:"required,payment_type"`
	Amount        decimal.Decimal `json:"amount" validate:"required,gt=0"`
	CustomerName  string          `json:"customer_name"`
	FromAccountNo string          `json:"from_account_no" validate:"required"`
	ToAccountNo   string          `json:"to_account_no" validate:"required"`
	BranchName    string          `json:"branch_name"`
	Comments      string          `json:"comments"`
	InitiatedAt   time.Time       `json:"initiated_at"`

	// Request metadata
	RequestID string `json:"x_request_id"`
	APIClient string `json:"x_api_client"`
}

// TransactionRecord is the replicated state of one transfer attempt, keyed by
// transaction reference. It is owned by the orchestrator; the settlement
// engine only returns data that the orchestrator folds in.
type TransactionRecord struct {
	TxnRef        string            `json:"txn_ref"`
	Status        TransactionStatus `json:"status"`
	PaymentType   string            `json:"payment_type,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	PayerAccount  string            `json:"payer_account,omitempty"`
	PayeeAccount  string            `json:"payee_account,omitempty"`
	PayeeName     string            `json:"payee_name,omitempty"`
	CustomerName  string            `json:"customer_name,omitempty"`
	IFSC          string            `json:"ifsc,omitempty"`
	BranchName    string            `json:"branch_name,omitempty"`
	Comments      string            `json:"comments,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	ValidatedAt   *time.Time        `json:"validated_at,omitempty"`
	InProgressAt  *time.Time        `json:"in_progress_at,omitempty"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
	ApprovedAt    *time.Time        `json:"approved_at,omitempty"`
	CbsID         string            `json:"cbs_id,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	RequestID     string            `json:"x_request_id,omitempty"`
	APIClient     string            `json:"x_api_client,omitempty"`
}

// PaymentResult is what the transfer and status endpoints return to callers.
type PaymentResult struct {
	TxnRef     string            `json:"txnRef"`
	Status     TransactionStatus `json:"status"`
	CbsID      string            `json:"cbsId,omitempty"`
	ApprovedAt *time.Time        `json:"approvedAt,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// CorePaymentStatus represents the settlement engine's record states.
type CorePaymentStatus string

const (
	CoreStatusProcessing          CorePaymentStatus = "PROCESSING"
	CoreStatusApproved            CorePaymentStatus = "APPROVED"
	CoreStatusRejected            CorePaymentStatus = "REJECTED"
	CoreStatusBalanceUpdateFailed CorePaymentStatus = "APPROVED_BALANCE_UPDATE_FAILED"
)

// CorePayment is the settlement record, created at most once per transaction
// reference (first writer wins on txn_ref).
type CorePayment struct {
	CbsID        uuid.UUID         `db:"cbs_id" json:"cbs_id"`
	TxnRef       string            `db:"txn_ref" json:"txn_ref"`
	Status       CorePaymentStatus `db:"status" json:"status"`
	Amount       decimal.Decimal   `db:"amount" json:"amount"`
	Currency     string            `db:"currency" json:"currency"`
	PayerAccount string            `db:"payer_account" json:"payer_account"`
	PayeeAccount string            `db:"payee_account" json:"payee_account"`
	IFSC         string            `db:"ifsc" json:"ifsc"`
	PaymentType  string            `db:"payment_type" json:"payment_type"`
	Comments     string            `db:"comments" json:"comments"`
	RawJSON      []byte            `db:"raw_json" json:"-"`
	InitiatedAt  time.Time         `db:"initiated_at" json:"initiated_at"`
	ApprovedAt   *time.Time        `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// SettlementRequest is the canonical JSON payload sent to the settlement engine.
type SettlementRequest struct {
	TxnRef      string             `json:"txnRef"`
	PaymentType string             `json:"paymentType"`
	Amount      decimal.Decimal    `json:"amount"`
	Currency    string             `json:"currency"`
	Payer       SettlementParty    `json:"payer"`
	Payee       SettlementParty    `json:"payee"`
	Meta        SettlementMeta     `json:"meta"`
	Headers     InstructionHeaders `json:"headers"`
}

type SettlementParty struct {
	Name        string `json:"name"`
	AccountNo   string `json:"accountNo"`
	AccountType string `json:"accountType,omitempty"`
	IFSC        string `json:"ifsc,omitempty"`
}

type SettlementMeta struct {
	BranchName  string    `json:"branchName,omitempty"`
	InitiatedAt time.Time `json:"initiatedAt"`
	Comments    string    `json:"comments,omitempty"`
}

type InstructionHeaders struct {
	XRequestID string `json:"xRequestId"`
	XAPIClient string `json:"xApiClient"`
}

// CoreBankingResponse is the settlement engine's reply on the wire.
type CoreBankingResponse struct {
	Status     string     `json:"status"`
	TxnRef     string     `json:"txnRef"`
	CbsID      string     `json:"cbsId,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// OutcomeStatus classifies a settlement call into exactly one bucket.
type OutcomeStatus string

const (
	OutcomeApproved OutcomeStatus = "APPROVED"
	OutcomeRejected OutcomeStatus = "REJECTED"
	OutcomeTimeout  OutcomeStatus = "TIMEOUT"
)

// SettlementOutcome is the classified result of one settlement call. Degraded
// marks an approval whose funds movement could not be confirmed.
type SettlementOutcome struct {
	Status     OutcomeStatus
	TxnRef     string
	CbsID      string
	ApprovedAt *time.Time
	Reason     string
	Degraded   bool
}

// BalanceMovement reports the accounts collaborator's view of a debit/credit.
type BalanceMovement struct {
	Success    bool            `json:"success"`
	OldBalance decimal.Decimal `json:"oldBalance"`
	NewBalance decimal.Decimal `json:"newBalance"`
	MovementID int64           `json:"transactionId"`
	Message    string          `json:"message,omitempty"`
}

// TransactionHistoryEntry is the best-effort history record written after a
// confirmed debit.
type TransactionHistoryEntry struct {
	AccountNumber   string          `json:"accountNumber"`
	TransactionType string          `json:"transactionType"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	ReferenceNumber string          `json:"referenceNumber"`
	BalanceAfter    decimal.Decimal `json:"balanceAfter"`
	Status          string          `json:"status"`
}
