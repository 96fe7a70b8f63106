package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/pesabridge/internal/models"
)

const (
	mintWorkerBatchSize   = 50
	mintWorkerMaxAttempts = 8
	mintSubmitTimeout     = 30 * time.Second
)

// EscrowSubmitter is the slice of the escrow client the worker needs.
type EscrowSubmitter interface {
	SubmitIntent(ctx context.Context, amount float64, txRef string) (string, error)
}

// SubmissionStore is the durable submission queue the worker drains.
type SubmissionStore interface {
	FetchDue(ctx context.Context, limit int) ([]models.EscrowSubmission, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, chainTxHash string) error
	Reschedule(ctx context.Context, sub *models.EscrowSubmission, maxAttempts int, cause error) error
}

// MintWorker periodically drains pending escrow submissions. It never
// touches transaction status: a completed payment stays completed even
// when every submission attempt fails.
type MintWorker struct {
	store    SubmissionStore
	escrow   EscrowSubmitter
	interval time.Duration
}

func NewMintWorker(store SubmissionStore, escrow EscrowSubmitter, interval time.Duration) *MintWorker {
	return &MintWorker{
		store:    store,
		escrow:   escrow,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, processing due submissions each tick.
func (w *MintWorker) Run(ctx context.Context) {
	log.Printf("[MintWorker] started, interval %s", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[MintWorker] stopped")
			return
		case <-ticker.C:
			w.process(ctx)
		}
	}
}

func (w *MintWorker) process(ctx context.Context) {
	subs, err := w.store.FetchDue(ctx, mintWorkerBatchSize)
	if err != nil {
		log.Printf("[MintWorker] fetch due submissions failed: %v", err)
		return
	}

	for i := range subs {
		sub := &subs[i]

		submitCtx, cancel := context.WithTimeout(ctx, mintSubmitTimeout)
		hash, err := w.escrow.SubmitIntent(submitCtx, sub.Amount, sub.TxRef)
		cancel()

		if err != nil {
			log.Printf("[MintWorker] submitIntent failed for transaction %s (attempt %d): %v",
				sub.TransactionID, sub.Attempts+1, err)
			if err := w.store.Reschedule(ctx, sub, mintWorkerMaxAttempts, err); err != nil {
				log.Printf("[MintWorker] reschedule failed for submission %s: %v", sub.ID, err)
			}
			continue
		}

		log.Printf("[MintWorker] submitted intent for transaction %s, tx %s", sub.TransactionID, hash)
		if err := w.store.MarkSubmitted(ctx, sub.ID, hash); err != nil {
			log.Printf("[MintWorker] mark submitted failed for submission %s: %v", sub.ID, err)
		}
	}
}
