package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/pesabridge/internal/models"
)

const (
	submissionBackoffBase = 30 * time.Second
	submissionBackoffCap  = 15 * time.Minute
)

// SubmissionService is the durable queue of pending escrow submissions.
type SubmissionService struct {
	db *gorm.DB
}

func NewSubmissionService(db *gorm.DB) *SubmissionService {
	return &SubmissionService{db: db}
}

// FetchDue returns pending submissions whose next attempt time has passed.
func (s *SubmissionService) FetchDue(ctx context.Context, limit int) ([]models.EscrowSubmission, error) {
	var subs []models.EscrowSubmission
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.SubmissionStatusPending, time.Now()).
		Order("next_attempt_at asc").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

// MarkSubmitted records a successful on-chain submission.
func (s *SubmissionService) MarkSubmitted(ctx context.Context, id uuid.UUID, chainTxHash string) error {
	return s.db.WithContext(ctx).Model(&models.EscrowSubmission{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.SubmissionStatusSubmitted,
			"chain_tx_hash": chainTxHash,
			"last_error":    "",
		}).Error
}

// Reschedule records a failed attempt. The submission goes terminal after
// maxAttempts, otherwise it is pushed out with exponential backoff.
func (s *SubmissionService) Reschedule(ctx context.Context, sub *models.EscrowSubmission, maxAttempts int, cause error) error {
	attempts := sub.Attempts + 1

	updates := map[string]any{
		"attempts":   attempts,
		"last_error": truncateError(cause),
	}
	if attempts >= maxAttempts {
		updates["status"] = models.SubmissionStatusFailed
	} else {
		updates["next_attempt_at"] = time.Now().Add(submissionBackoff(attempts))
	}

	return s.db.WithContext(ctx).Model(&models.EscrowSubmission{}).
		Where("id = ?", sub.ID).
		Updates(updates).Error
}

func submissionBackoff(attempts int) time.Duration {
	backoff := submissionBackoffBase
	for i := 1; i < attempts; i++ {
		backoff *= 2
		if backoff >= submissionBackoffCap {
			return submissionBackoffCap
		}
	}
	return backoff
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 1024
	msg := err.Error()
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen]
}
