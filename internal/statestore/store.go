// ==============================================================================
// TRANSACTION STATE STORE - internal/statestore/store.go
// ==============================================================================
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"vubank/internal/domain"
	pkgerrors "vubank/pkg/errors"
	"vubank/pkg/logger"
)

const (
	recordKeyPrefix  = "txn:"
	lockKeyPrefix    = "lock:txn:"
	balanceKeyPrefix = "bal:"
)

// Store holds replicated transaction records plus two best-effort auxiliary
// structures: the idempotency lock map and the advisory balance cache. Losing
// the auxiliary structures degrades duplicate suppression and funds
// pre-checking, never correctness of the settlement engine's own guard.
type Store struct {
	kv         KV
	recordTTL  time.Duration
	lockTTL    time.Duration
	balanceTTL time.Duration
	logger     logger.Logger
}

func NewStore(kv KV, recordTTL, lockTTL, balanceTTL time.Duration, log logger.Logger) *Store {
	return &Store{
		kv:         kv,
		recordTTL:  recordTTL,
		lockTTL:    lockTTL,
		balanceTTL: balanceTTL,
		logger:     log,
	}
}

// SaveRecord stores a transaction record under its reference.
func (s *Store) SaveRecord(ctx context.Context, rec *domain.TransactionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to serialize transaction record")
	}
	return s.kv.Set(ctx, recordKeyPrefix+rec.TxnRef, data, s.recordTTL)
}

// GetRecord returns the current record for a transaction reference.
func (s *Store) GetRecord(ctx context.Context, txnRef string) (*domain.TransactionRecord, error) {
	data, err := s.kv.Get(ctx, recordKeyPrefix+txnRef)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to retrieve transaction record")
	}

	var rec domain.TransactionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to deserialize transaction record")
	}
	return &rec, nil
}

// UpdateRecord applies mutate to the stored record through the backend's
// per-key compare-and-set, so concurrent phase updates are never lost to a
// full-record replacement. It returns the record as written.
func (s *Store) UpdateRecord(ctx context.Context, txnRef string, mutate func(*domain.TransactionRecord) error) (*domain.TransactionRecord, error) {
	var updated *domain.TransactionRecord

	err := s.kv.Update(ctx, recordKeyPrefix+txnRef, s.recordTTL, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, pkgerrors.ErrTransactionNotFound
		}

		var rec domain.TransactionRecord
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to deserialize transaction record")
		}

		if err := mutate(&rec); err != nil {
			return nil, err
		}
		rec.UpdatedAt = time.Now()

		updated = &rec
		return json.Marshal(&rec)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetStatus moves the record to status, stamping the matching phase timestamp
// and the failure reason when given.
func (s *Store) SetStatus(ctx context.Context, txnRef string, status domain.TransactionStatus, failureReason string) (*domain.TransactionRecord, error) {
	return s.UpdateRecord(ctx, txnRef, func(rec *domain.TransactionRecord) error {
		rec.Status = status
		if failureReason != "" {
			rec.FailureReason = failureReason
		}

		now := time.Now()
		switch status {
		case domain.StatusValidated:
			rec.ValidatedAt = &now
		case domain.StatusInProgress:
			rec.InProgressAt = &now
		case domain.StatusSuccess:
			rec.ProcessedAt = &now
		}
		return nil
	})
}

// TryLock atomically acquires the TTL-bounded idempotency lock for key.
// It returns false when an unexpired lock is already held.
func (s *Store) TryLock(ctx context.Context, key string) (bool, error) {
	value := []byte("LOCKED:" + time.Now().UTC().Format(time.RFC3339Nano))
	acquired, err := s.kv.SetNX(ctx, lockKeyPrefix+key, value, s.lockTTL)
	if err != nil {
		s.logger.Error("Failed to acquire idempotency lock", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false, err
	}
	return acquired, nil
}

// Unlock releases the idempotency lock, best effort. A missing key is not an
// error; expiry is the only other release path.
func (s *Store) Unlock(ctx context.Context, key string) {
	if err := s.kv.Delete(ctx, lockKeyPrefix+key); err != nil {
		s.logger.Warn("Failed to release idempotency lock", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// CachedBalance returns the advisory cached balance for an account. The value
// may be stale and must never be treated as authoritative for the debit.
func (s *Store) CachedBalance(ctx context.Context, account string) (decimal.Decimal, bool) {
	data, err := s.kv.Get(ctx, balanceKeyPrefix+account)
	if err != nil {
		return decimal.Zero, false
	}

	balance, err := decimal.NewFromString(string(data))
	if err != nil {
		return decimal.Zero, false
	}
	return balance, true
}

// CacheBalance stores an advisory balance snapshot with the configured TTL.
func (s *Store) CacheBalance(ctx context.Context, account string, balance decimal.Decimal) {
	if err := s.kv.Set(ctx, balanceKeyPrefix+account, []byte(balance.String()), s.balanceTTL); err != nil {
		s.logger.Warn("Failed to cache account balance", map[string]interface{}{
			"account": account,
			"error":   err.Error(),
		})
	}
}
