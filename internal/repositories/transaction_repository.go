package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"concilia/internal/apperrors"
	"concilia/internal/models"
)

type TransactionRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, t *models.Transaction) error
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*models.Transaction, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status string) error
}

type transactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Insert(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	query := `
		INSERT INTO bank_transactions (
			external_id, account_id, amount,
			transaction_date, description, status
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		t.ExternalID,
		t.AccountID,
		t.Amount,
		t.TransactionDate,
		t.Description,
		t.Status,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	t := &models.Transaction{}
	query := `
		SELECT id, external_id, account_id, amount,
		       transaction_date, description, status,
		       created_at, updated_at
		FROM bank_transactions
		WHERE id = ?
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.ExternalID,
		&t.AccountID,
		&t.Amount,
		&t.TransactionDate,
		&t.Description,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *transactionRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	t := &models.Transaction{}
	query := `
		SELECT id, external_id, account_id, amount,
		       transaction_date, description, status,
		       created_at, updated_at
		FROM bank_transactions
		WHERE external_id = ?
	`
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(
		&t.ID,
		&t.ExternalID,
		&t.AccountID,
		&t.Amount,
		&t.TransactionDate,
		&t.Description,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *transactionRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, external_id, account_id, amount,
		       transaction_date, description, status,
		       created_at, updated_at
		FROM bank_transactions
		WHERE status = ?
		ORDER BY transaction_date, id
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		t := &models.Transaction{}
		err := rows.Scan(
			&t.ID,
			&t.ExternalID,
			&t.AccountID,
			&t.Amount,
			&t.TransactionDate,
			&t.Description,
			&t.Status,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *transactionRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	query := `
		UPDATE bank_transactions
		SET status = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := tx.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
