package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"concilia/internal/apperrors"
	"concilia/internal/models"
	"concilia/internal/ofx"
	"concilia/internal/repositories"
)

type IngestionService struct {
	db              *sql.DB
	transactionRepo repositories.TransactionRepository
	parser          *ofx.Parser
}

func NewIngestionService(db *sql.DB, transactionRepo repositories.TransactionRepository) *IngestionService {
	return &IngestionService{
		db:              db,
		transactionRepo: transactionRepo,
		parser:          ofx.NewParser(),
	}
}

// TransactionInput is one pre-parsed statement row.
type TransactionInput struct {
	ExternalID      string `json:"external_id"`
	AccountID       string `json:"account_id"`
	Amount          string `json:"amount"`
	TransactionDate string `json:"transaction_date"`
	Description     string `json:"description"`
}

// IngestResult reports a partial-success import.
type IngestResult struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []IngestError `json:"errors,omitempty"`
}

type IngestError struct {
	ExternalID string `json:"external_id,omitempty"`
	Row        int    `json:"row"`
	Message    string `json:"message"`
}

// IngestOFX imports the statement entries of an OFX document. Entries
// whose external id was imported before are counted as skipped, which
// makes re-uploading the same file safe.
func (s *IngestionService) IngestOFX(ctx context.Context, reader io.Reader) (*IngestResult, error) {
	transactions, err := s.parser.Parse(reader)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, transactions, nil)
}

// IngestTransactions imports pre-parsed rows with per-row validation.
// Invalid rows are reported and the rest imported.
func (s *IngestionService) IngestTransactions(ctx context.Context, inputs []TransactionInput) (*IngestResult, error) {
	result := &IngestResult{}
	var transactions []*models.Transaction
	var rows []int

	for i, input := range inputs {
		t, err := convertInput(input)
		if err != nil {
			result.Errors = append(result.Errors, IngestError{
				ExternalID: input.ExternalID,
				Row:        i,
				Message:    err.Error(),
			})
			continue
		}
		transactions = append(transactions, t)
		rows = append(rows, i)
	}

	persisted, err := s.persist(ctx, transactions, rows)
	if err != nil {
		return nil, err
	}
	result.Imported = persisted.Imported
	result.Skipped = persisted.Skipped
	result.Errors = append(result.Errors, persisted.Errors...)
	return result, nil
}

// persist writes the transactions and reports per-row errors. rows
// maps each transaction back to its position in the caller's input;
// nil means positions are unchanged.
func (s *IngestionService) persist(ctx context.Context, transactions []*models.Transaction, rows []int) (*IngestResult, error) {
	result := &IngestResult{}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	for i, t := range transactions {
		_, err := s.transactionRepo.GetByExternalID(ctx, t.ExternalID)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}

		if err := s.transactionRepo.Insert(ctx, dbTx, t); err != nil {
			row := i
			if rows != nil {
				row = rows[i]
			}
			result.Errors = append(result.Errors, IngestError{
				ExternalID: t.ExternalID,
				Row:        row,
				Message:    err.Error(),
			})
			continue
		}
		result.Imported++
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	slog.Info("Statement import finished",
		"imported", result.Imported,
		"skipped", result.Skipped,
		"errors", len(result.Errors))
	return result, nil
}

func convertInput(input TransactionInput) (*models.Transaction, error) {
	if input.ExternalID == "" {
		return nil, fmt.Errorf("%w: external_id is required", apperrors.ErrValidation)
	}
	if input.Description == "" {
		return nil, fmt.Errorf("%w: description is required", apperrors.ErrValidation)
	}

	amount, err := decimal.NewFromString(input.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", apperrors.ErrValidation, input.Amount)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must be non-zero", apperrors.ErrValidation)
	}

	date, err := time.Parse("2006-01-02", input.TransactionDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid transaction_date %q", apperrors.ErrValidation, input.TransactionDate)
	}

	return &models.Transaction{
		ExternalID:      input.ExternalID,
		AccountID:       input.AccountID,
		Amount:          amount,
		TransactionDate: date,
		Description:     input.Description,
		Status:          models.TxStatusUnmatched,
	}, nil
}
