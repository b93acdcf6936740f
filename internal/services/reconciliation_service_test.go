package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"concilia/internal/apperrors"
	"concilia/internal/config"
	"concilia/internal/decision"
	"concilia/internal/matching"
	"concilia/internal/models"
)

type mockTransactionRepo struct{ mock.Mock }

func (m *mockTransactionRepo) Insert(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	return m.Called(ctx, tx, t).Error(0)
}

func (m *mockTransactionRepo) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockTransactionRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockTransactionRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *mockTransactionRepo) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	return m.Called(ctx, tx, id, status).Error(0)
}

type mockCandidateRepo struct{ mock.Mock }

func (m *mockCandidateRepo) Insert(ctx context.Context, tx *sql.Tx, c *models.Candidate) error {
	return m.Called(ctx, tx, c).Error(0)
}

func (m *mockCandidateRepo) GetByID(ctx context.Context, id int64) (*models.Candidate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Candidate), args.Error(1)
}

func (m *mockCandidateRepo) ListOpen(ctx context.Context) ([]*models.Candidate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Candidate), args.Error(1)
}

func (m *mockCandidateRepo) Settle(ctx context.Context, tx *sql.Tx, id int64, paidAt time.Time) error {
	return m.Called(ctx, tx, id, paidAt).Error(0)
}

type mockCounterpartyRepo struct{ mock.Mock }

func (m *mockCounterpartyRepo) Insert(ctx context.Context, tx *sql.Tx, cp *models.Counterparty) error {
	return m.Called(ctx, tx, cp).Error(0)
}

func (m *mockCounterpartyRepo) GetByID(ctx context.Context, id int64) (*models.Counterparty, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Counterparty), args.Error(1)
}

func (m *mockCounterpartyRepo) ListAll(ctx context.Context) ([]*models.Counterparty, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Counterparty), args.Error(1)
}

func (m *mockCounterpartyRepo) InsertAlias(ctx context.Context, tx *sql.Tx, a *models.Alias) error {
	return m.Called(ctx, tx, a).Error(0)
}

type mockReconciliationRepo struct{ mock.Mock }

func (m *mockReconciliationRepo) InsertMatchResult(ctx context.Context, tx *sql.Tx, mr *models.MatchResult) error {
	return m.Called(ctx, tx, mr).Error(0)
}

func (m *mockReconciliationRepo) GetMatchResultByExternalID(ctx context.Context, externalID string) (*models.MatchResult, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MatchResult), args.Error(1)
}

func (m *mockReconciliationRepo) DeleteMatchResult(ctx context.Context, tx *sql.Tx, id string) error {
	return m.Called(ctx, tx, id).Error(0)
}

func (m *mockReconciliationRepo) InsertBatch(ctx context.Context, b *models.ReconciliationBatch) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockReconciliationRepo) UpdateBatch(ctx context.Context, b *models.ReconciliationBatch) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockReconciliationRepo) GetBatchByID(ctx context.Context, id string) (*models.ReconciliationBatch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReconciliationBatch), args.Error(1)
}

// stubDecider lets tests script per-transaction outcomes, including
// panics, without a database.
type stubDecider struct {
	decide  func(tx *models.Transaction) (*decision.Outcome, error)
	confirm func(externalID string, candidateIDs []int64) (*decision.Outcome, error)
}

func (s *stubDecider) Decide(_ context.Context, tx *models.Transaction, _ []matching.Candidate) (*decision.Outcome, error) {
	return s.decide(tx)
}

func (s *stubDecider) Confirm(_ context.Context, externalID string, candidateIDs []int64) (*decision.Outcome, error) {
	return s.confirm(externalID, candidateIDs)
}

type serviceFixture struct {
	service      *ReconciliationService
	transactions *mockTransactionRepo
	candidates   *mockCandidateRepo
	parties      *mockCounterpartyRepo
	batches      *mockReconciliationRepo
}

func newServiceFixture(decider Decider) *serviceFixture {
	f := &serviceFixture{
		transactions: &mockTransactionRepo{},
		candidates:   &mockCandidateRepo{},
		parties:      &mockCounterpartyRepo{},
		batches:      &mockReconciliationRepo{},
	}
	f.service = NewReconciliationService(
		f.transactions,
		f.candidates,
		f.parties,
		f.batches,
		decider,
		config.MatcherConfig{Workers: 2, BatchLimit: 100, RetryAttempts: 1},
	)
	return f
}

func batchTx(id int64, externalID string) *models.Transaction {
	return &models.Transaction{
		ID:          id,
		ExternalID:  externalID,
		Amount:      decimal.RequireFromString("100.00"),
		Description: "PIX RECEBIDO",
		Status:      models.TxStatusUnmatched,
	}
}

func TestRunBatchTalliesOutcomes(t *testing.T) {
	decider := &stubDecider{
		decide: func(tx *models.Transaction) (*decision.Outcome, error) {
			switch tx.ExternalID {
			case "FIT001":
				return &decision.Outcome{Status: models.TxStatusAutoSettled}, nil
			case "FIT002":
				return &decision.Outcome{Status: models.TxStatusSuggested}, nil
			default:
				return &decision.Outcome{Status: models.TxStatusNeedsReview, Reason: decision.ReasonNoMatch}, nil
			}
		},
	}
	f := newServiceFixture(decider)

	f.batches.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)
	f.transactions.On("ListByStatus", mock.Anything, models.TxStatusUnmatched, 100).Return([]*models.Transaction{
		batchTx(1, "FIT001"),
		batchTx(2, "FIT002"),
		batchTx(3, "FIT003"),
	}, nil)
	f.candidates.On("ListOpen", mock.Anything).Return([]*models.Candidate{}, nil)
	f.parties.On("ListAll", mock.Anything).Return([]*models.Counterparty{}, nil)
	f.batches.On("UpdateBatch", mock.Anything, mock.MatchedBy(func(b *models.ReconciliationBatch) bool {
		return b.Status == models.BatchStatusCompleted &&
			b.Processed == 3 && b.AutoSettled == 1 && b.Suggested == 1 && b.NeedsReview == 1
	})).Return(nil)

	result, err := f.service.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Items, 3)
	assert.Equal(t, models.TxStatusAutoSettled, result.Items[0].Status)
	assert.Equal(t, models.TxStatusSuggested, result.Items[1].Status)
	assert.Equal(t, decision.ReasonNoMatch, result.Items[2].Reason)
	f.batches.AssertExpectations(t)
}

func TestRunBatchSurvivesDeciderErrorsAndPanics(t *testing.T) {
	decider := &stubDecider{
		decide: func(tx *models.Transaction) (*decision.Outcome, error) {
			switch tx.ExternalID {
			case "FIT001":
				return nil, errors.New("storage unavailable")
			case "FIT002":
				panic("matcher bug")
			default:
				return &decision.Outcome{Status: models.TxStatusAutoSettled}, nil
			}
		},
	}
	f := newServiceFixture(decider)

	f.batches.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)
	f.transactions.On("ListByStatus", mock.Anything, models.TxStatusUnmatched, 100).Return([]*models.Transaction{
		batchTx(1, "FIT001"),
		batchTx(2, "FIT002"),
		batchTx(3, "FIT003"),
	}, nil)
	f.candidates.On("ListOpen", mock.Anything).Return([]*models.Candidate{}, nil)
	f.parties.On("ListAll", mock.Anything).Return([]*models.Counterparty{}, nil)
	f.batches.On("UpdateBatch", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.RunBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	assert.Equal(t, "decision_failed", result.Items[0].Reason)
	assert.Equal(t, "internal_error", result.Items[1].Reason)
	assert.Contains(t, result.Items[1].Error, "matcher bug")
	assert.Equal(t, models.TxStatusAutoSettled, result.Items[2].Status)
}

func TestRunBatchReportsCandidateFetchFailure(t *testing.T) {
	f := newServiceFixture(&stubDecider{
		decide: func(*models.Transaction) (*decision.Outcome, error) {
			panic("decider must not run without a pool")
		},
	})

	f.batches.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)
	f.transactions.On("ListByStatus", mock.Anything, models.TxStatusUnmatched, 100).Return([]*models.Transaction{
		batchTx(1, "FIT001"),
	}, nil)
	f.candidates.On("ListOpen", mock.Anything).Return(nil, errors.New("connection refused"))
	f.batches.On("UpdateBatch", mock.Anything, mock.MatchedBy(func(b *models.ReconciliationBatch) bool {
		return b.NeedsReview == 1 && b.Status == models.BatchStatusCompleted
	})).Return(nil)

	result, err := f.service.RunBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, models.TxStatusNeedsReview, result.Items[0].Status)
	assert.Equal(t, "candidate_fetch_failed", result.Items[0].Reason)
	assert.Contains(t, result.Items[0].Error, apperrors.ErrCandidateFetch.Error())
}

func TestListOpenTransactionsMergesStatuses(t *testing.T) {
	f := newServiceFixture(&stubDecider{})

	f.transactions.On("ListByStatus", mock.Anything, models.TxStatusUnmatched, 100).Return([]*models.Transaction{
		batchTx(1, "FIT001"),
	}, nil)
	f.transactions.On("ListByStatus", mock.Anything, models.TxStatusNeedsReview, 100).Return([]*models.Transaction{
		batchTx(2, "FIT002"),
	}, nil)

	got, err := f.service.ListOpenTransactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
