// ==============================================================================
// CORE PAYMENT REPOSITORY - internal/repository/postgres/corepayment.go
// ==============================================================================
package postgres

import (
	"context"
	"database/sql"
	"time"

	"vubank/internal/domain"
	"vubank/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type CorePaymentRepository struct {
	db *sqlx.DB
}

func NewCorePaymentRepository(db *sqlx.DB) *CorePaymentRepository {
	return &CorePaymentRepository{db: db}
}

// CreateProcessing inserts the provisional settlement record. The unique index
// on txn_ref makes this first writer wins: a false return means another record
// already holds the reference.
func (r *CorePaymentRepository) CreateProcessing(ctx context.Context, payment *domain.CorePayment) (bool, error) {
	query := `
		INSERT INTO core_payments (
			cbs_id, txn_ref, status, amount, currency, payer_account,
			payee_account, ifsc, payment_type, comments, raw_json,
			initiated_at, approved_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (txn_ref) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.CbsID, payment.TxnRef, payment.Status, payment.Amount,
		payment.Currency, payment.PayerAccount, payment.PayeeAccount,
		payment.IFSC, payment.PaymentType, payment.Comments, payment.RawJSON,
		payment.InitiatedAt, payment.ApprovedAt, payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to create core payment")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read insert result")
	}
	return rows == 1, nil
}

func (r *CorePaymentRepository) UpdateStatus(ctx context.Context, cbsID uuid.UUID, status domain.CorePaymentStatus, approvedAt *time.Time) error {
	query := `
		UPDATE core_payments SET
			status = $1, approved_at = COALESCE($2, approved_at), updated_at = $3
		WHERE cbs_id = $4
	`

	_, err := r.db.ExecContext(ctx, query, status, approvedAt, time.Now(), cbsID)
	return errors.Wrap(err, "failed to update core payment status")
}

func (r *CorePaymentRepository) FindByTxnRef(ctx context.Context, txnRef string) (*domain.CorePayment, error) {
	var payment domain.CorePayment
	query := `SELECT * FROM core_payments WHERE txn_ref = $1`

	err := r.db.GetContext(ctx, &payment, query, txnRef)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSettlementNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find core payment")
	}

	return &payment, nil
}
