package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"concilia/internal/apperrors"
	"concilia/internal/models"
)

type CandidateRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, c *models.Candidate) error
	GetByID(ctx context.Context, id int64) (*models.Candidate, error)
	ListOpen(ctx context.Context) ([]*models.Candidate, error)
	Settle(ctx context.Context, tx *sql.Tx, id int64, paidAt time.Time) error
}

type candidateRepository struct {
	db *sql.DB
}

func NewCandidateRepository(db *sql.DB) CandidateRepository {
	return &candidateRepository{db: db}
}

func (r *candidateRepository) Insert(ctx context.Context, tx *sql.Tx, c *models.Candidate) error {
	query := `
		INSERT INTO candidates (
			kind, amount, due_date, counterparty_id,
			document_number, competence, status
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		c.Kind,
		c.Amount,
		c.DueDate,
		c.CounterpartyID,
		c.DocumentNumber,
		c.Competence,
		c.Status,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (r *candidateRepository) GetByID(ctx context.Context, id int64) (*models.Candidate, error) {
	c := &models.Candidate{}
	query := `
		SELECT id, kind, amount, due_date, counterparty_id,
		       document_number, competence, status, paid_at,
		       created_at, updated_at
		FROM candidates
		WHERE id = ?
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.Kind,
		&c.Amount,
		&c.DueDate,
		&c.CounterpartyID,
		&c.DocumentNumber,
		&c.Competence,
		&c.Status,
		&c.PaidAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *candidateRepository) ListOpen(ctx context.Context) ([]*models.Candidate, error) {
	query := `
		SELECT id, kind, amount, due_date, counterparty_id,
		       document_number, competence, status, paid_at,
		       created_at, updated_at
		FROM candidates
		WHERE status IN (?, ?)
		ORDER BY due_date, id
	`
	rows, err := r.db.QueryContext(ctx, query, models.CandidatePending, models.CandidateOverdue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []*models.Candidate
	for rows.Next() {
		c := &models.Candidate{}
		err := rows.Scan(
			&c.ID,
			&c.Kind,
			&c.Amount,
			&c.DueDate,
			&c.CounterpartyID,
			&c.DocumentNumber,
			&c.Competence,
			&c.Status,
			&c.PaidAt,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// Settle marks a candidate paid. The status guard makes the update an
// optimistic-concurrency check: zero affected rows means another
// settlement won the race.
func (r *candidateRepository) Settle(ctx context.Context, tx *sql.Tx, id int64, paidAt time.Time) error {
	query := `
		UPDATE candidates
		SET status = ?,
			paid_at = ?,
			updated_at = ?
		WHERE id = ?
		AND status IN (?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		models.CandidatePaid,
		paidAt,
		time.Now(),
		id,
		models.CandidatePending,
		models.CandidateOverdue,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return apperrors.ErrConflictingSettlement
	}
	return nil
}
