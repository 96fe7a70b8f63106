package models

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the delivery state of a mint intent submission.
type SubmissionStatus string

const (
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusFailed    SubmissionStatus = "failed"
)

// EscrowSubmission is the durable follow-up record for a completed payment.
// It is inserted in the same database transaction that marks the payment
// completed, so the mint worker can retry the on-chain call independently
// of the webhook response. The unique transaction id keeps submissions
// at most once per payment.
type EscrowSubmission struct {
	BaseModel
	TransactionID uuid.UUID        `gorm:"type:uuid;uniqueIndex" json:"transaction_id"`
	Amount        float64          `json:"amount"`
	TxRef         string           `gorm:"column:tx_ref" json:"tx_ref"`
	Status        SubmissionStatus `gorm:"default:pending;index" json:"status"`
	Attempts      int              `json:"attempts"`
	NextAttemptAt time.Time        `gorm:"index" json:"next_attempt_at"`
	LastError     string           `json:"last_error,omitempty"`
	ChainTxHash   string           `gorm:"column:chain_tx_hash" json:"chain_tx_hash,omitempty"`
}
