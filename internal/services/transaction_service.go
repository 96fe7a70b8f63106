package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/example/pesabridge/internal/models"
)

// TransactionService is the durable store for payment transactions. All
// terminal transitions go through conditional updates keyed by the
// gateway's MerchantRequestID, never through read-then-write.
type TransactionService struct {
	db *gorm.DB
}

func NewTransactionService(db *gorm.DB) *TransactionService {
	return &TransactionService{db: db}
}

// Create persists a freshly initiated transaction in processing state.
func (s *TransactionService) Create(ctx context.Context, txn *models.Transaction) error {
	txn.Status = models.TransactionStatusProcessing
	return s.db.WithContext(ctx).Create(txn).Error
}

// FindByMerchantRequestID returns the transaction for a correlation id, or
// nil when no transaction matches.
func (s *TransactionService) FindByMerchantRequestID(ctx context.Context, merchantRequestID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.WithContext(ctx).
		Where("merchant_request_id = ?", merchantRequestID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// Complete flips the transaction to completed and enqueues the escrow
// submission in the same database transaction. The UPDATE is guarded on
// the processing state, so of any number of concurrent callback
// deliveries exactly one observes transitioned=true; duplicates and
// unknown ids report false without side effects.
func (s *TransactionService) Complete(ctx context.Context, merchantRequestID, mpesaCode, phoneNumber string) (*models.Transaction, bool, error) {
	var txn *models.Transaction
	transitioned := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":     models.TransactionStatusCompleted,
			"mpesa_code": mpesaCode,
		}
		if phoneNumber != "" {
			updates["phone_number"] = phoneNumber
		}

		res := tx.Model(&models.Transaction{}).
			Where("merchant_request_id = ? AND status = ?", merchantRequestID, models.TransactionStatusProcessing).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var updated models.Transaction
		if err := tx.Where("merchant_request_id = ?", merchantRequestID).First(&updated).Error; err != nil {
			return err
		}

		submission := models.EscrowSubmission{
			TransactionID: updated.ID,
			Amount:        updated.Amount,
			TxRef:         mpesaCode,
			Status:        models.SubmissionStatusPending,
			NextAttemptAt: time.Now(),
		}
		if err := tx.Create(&submission).Error; err != nil {
			return err
		}

		txn = &updated
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return txn, transitioned, nil
}

// Fail flips the transaction to failed with the given reason. Guarded the
// same way as Complete: only a processing transaction transitions.
func (s *TransactionService) Fail(ctx context.Context, merchantRequestID string, reason models.TransactionFailureReason) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("merchant_request_id = ? AND status = ?", merchantRequestID, models.TransactionStatusProcessing).
		Updates(map[string]any{
			"status":         models.TransactionStatusFailed,
			"failure_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// List returns transaction history, newest first.
func (s *TransactionService) List(ctx context.Context, status string, limit, offset int) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []models.Transaction
	if err := query.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error; err != nil {
		return nil, 0, err
	}

	return txns, total, nil
}
