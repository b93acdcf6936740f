package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"concilia/internal/apperrors"
	"concilia/internal/common"
	"concilia/internal/config"
	"concilia/internal/decision"
	"concilia/internal/matching"
	"concilia/internal/models"
	"concilia/internal/repositories"
)

// Decider is the decision surface the batch service drives.
type Decider interface {
	Decide(ctx context.Context, tx *models.Transaction, pool []matching.Candidate) (*decision.Outcome, error)
	Confirm(ctx context.Context, externalID string, candidateIDs []int64) (*decision.Outcome, error)
}

type ReconciliationService struct {
	transactionRepo    repositories.TransactionRepository
	candidateRepo      repositories.CandidateRepository
	counterpartyRepo   repositories.CounterpartyRepository
	reconciliationRepo repositories.ReconciliationRepository
	decider            Decider
	cfg                config.MatcherConfig
}

func NewReconciliationService(
	transactionRepo repositories.TransactionRepository,
	candidateRepo repositories.CandidateRepository,
	counterpartyRepo repositories.CounterpartyRepository,
	reconciliationRepo repositories.ReconciliationRepository,
	decider Decider,
	cfg config.MatcherConfig,
) *ReconciliationService {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	return &ReconciliationService{
		transactionRepo:    transactionRepo,
		candidateRepo:      candidateRepo,
		counterpartyRepo:   counterpartyRepo,
		reconciliationRepo: reconciliationRepo,
		decider:            decider,
		cfg:                cfg,
	}
}

// BatchItem is the per-transaction outcome of a batch run.
type BatchItem struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

type BatchResult struct {
	Batch *models.ReconciliationBatch `json:"batch"`
	Items []BatchItem                 `json:"items"`
}

// RunBatch processes up to the configured limit of unmatched
// transactions against a single snapshot of the open candidate pool.
// Scoring is fanned out to a bounded worker pool; the snapshot is
// read-only and concurrent settlements of the same candidate are
// serialized by the status-guarded update, so a worker losing that
// race simply reports a review outcome.
func (s *ReconciliationService) RunBatch(ctx context.Context) (*BatchResult, error) {
	batch := &models.ReconciliationBatch{
		ID:     uuid.New().String(),
		Status: models.BatchStatusRunning,
	}
	if err := s.reconciliationRepo.InsertBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	transactions, err := s.transactionRepo.ListByStatus(ctx, models.TxStatusUnmatched, s.cfg.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched transactions: %w", err)
	}

	pool, poolErr := s.loadPool(ctx)
	items := make([]BatchItem, len(transactions))

	if poolErr != nil {
		// The pool never loaded; every item needs a human until the
		// next run.
		slog.Error("Candidate pool unavailable for batch",
			"batch_id", batch.ID,
			"error", poolErr)
		for i, tx := range transactions {
			items[i] = BatchItem{
				ExternalID: tx.ExternalID,
				Status:     models.TxStatusNeedsReview,
				Reason:     "candidate_fetch_failed",
				Error:      poolErr.Error(),
			}
		}
	} else {
		s.fanOut(ctx, transactions, pool, items)
	}

	batch.Status = models.BatchStatusCompleted
	batch.Processed = len(items)
	for _, item := range items {
		switch item.Status {
		case models.TxStatusAutoSettled:
			batch.AutoSettled++
		case models.TxStatusSuggested:
			batch.Suggested++
		default:
			batch.NeedsReview++
		}
	}
	if err := s.reconciliationRepo.UpdateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to complete batch: %w", err)
	}

	slog.Info("Batch completed",
		"batch_id", batch.ID,
		"processed", batch.Processed,
		"auto_settled", batch.AutoSettled,
		"suggested", batch.Suggested,
		"needs_review", batch.NeedsReview)
	return &BatchResult{Batch: batch, Items: items}, nil
}

func (s *ReconciliationService) fanOut(ctx context.Context, transactions []*models.Transaction, pool []matching.Candidate, items []BatchItem) {
	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup

	for i, tx := range transactions {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, tx *models.Transaction) {
			defer wg.Done()
			defer func() { <-sem }()
			items[i] = s.processOne(ctx, tx, pool)
		}(i, tx)
	}
	wg.Wait()
}

// processOne decides a single transaction. A panic in the matcher is
// contained to the item and reported as a review outcome.
func (s *ReconciliationService) processOne(ctx context.Context, tx *models.Transaction, pool []matching.Candidate) (item BatchItem) {
	item.ExternalID = tx.ExternalID
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic while deciding transaction",
				"external_id", tx.ExternalID,
				"panic", r)
			item.Status = models.TxStatusNeedsReview
			item.Reason = "internal_error"
			item.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	outcome, err := s.decider.Decide(ctx, tx, pool)
	if err != nil {
		slog.Error("Failed to decide transaction",
			"external_id", tx.ExternalID,
			"error", err)
		item.Status = models.TxStatusNeedsReview
		item.Reason = "decision_failed"
		item.Error = err.Error()
		return item
	}

	item.Status = outcome.Status
	item.Reason = outcome.Reason
	return item
}

// loadPool snapshots the open candidates joined with their
// counterparties, retrying transient fetch failures.
func (s *ReconciliationService) loadPool(ctx context.Context) ([]matching.Candidate, error) {
	var candidates []*models.Candidate
	var parties []*models.Counterparty

	err := common.WithRetry(ctx, func() error {
		var err error
		if candidates, err = s.candidateRepo.ListOpen(ctx); err != nil {
			return err
		}
		parties, err = s.counterpartyRepo.ListAll(ctx)
		return err
	}, common.RetryOptions{MaxAttempts: s.cfg.RetryAttempts})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCandidateFetch, err)
	}

	byID := make(map[int64]*models.Counterparty, len(parties))
	for _, cp := range parties {
		byID[cp.ID] = cp
	}

	pool := make([]matching.Candidate, len(candidates))
	for i, c := range candidates {
		pool[i] = matching.Candidate{Candidate: c, Counterparty: byID[c.CounterpartyID]}
	}
	return pool, nil
}

// Confirm settles a transaction with operator-picked candidates.
func (s *ReconciliationService) Confirm(ctx context.Context, externalID string, candidateIDs []int64) (*decision.Outcome, error) {
	return s.decider.Confirm(ctx, externalID, candidateIDs)
}

func (s *ReconciliationService) GetBatch(ctx context.Context, id string) (*models.ReconciliationBatch, error) {
	return s.reconciliationRepo.GetBatchByID(ctx, id)
}

// ListOpenTransactions returns statement entries still waiting on a
// settlement or a review decision.
func (s *ReconciliationService) ListOpenTransactions(ctx context.Context) ([]*models.Transaction, error) {
	unmatched, err := s.transactionRepo.ListByStatus(ctx, models.TxStatusUnmatched, s.cfg.BatchLimit)
	if err != nil {
		return nil, err
	}
	review, err := s.transactionRepo.ListByStatus(ctx, models.TxStatusNeedsReview, s.cfg.BatchLimit)
	if err != nil {
		return nil, err
	}
	return append(unmatched, review...), nil
}
