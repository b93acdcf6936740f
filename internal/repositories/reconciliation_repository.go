package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"concilia/internal/apperrors"
	"concilia/internal/models"
)

const mysqlDuplicateEntry = 1062

type ReconciliationRepository interface {
	InsertMatchResult(ctx context.Context, tx *sql.Tx, mr *models.MatchResult) error
	GetMatchResultByExternalID(ctx context.Context, externalID string) (*models.MatchResult, error)
	DeleteMatchResult(ctx context.Context, tx *sql.Tx, id string) error
	InsertBatch(ctx context.Context, b *models.ReconciliationBatch) error
	UpdateBatch(ctx context.Context, b *models.ReconciliationBatch) error
	GetBatchByID(ctx context.Context, id string) (*models.ReconciliationBatch, error)
}

type reconciliationRepository struct {
	db *sql.DB
}

func NewReconciliationRepository(db *sql.DB) ReconciliationRepository {
	return &reconciliationRepository{db: db}
}

// InsertMatchResult persists the result row and its candidate links.
// The unique key on external_id enforces at most one result per
// statement entry; a duplicate insert surfaces as ErrAlreadyReconciled.
func (r *reconciliationRepository) InsertMatchResult(ctx context.Context, tx *sql.Tx, mr *models.MatchResult) error {
	query := `
		INSERT INTO match_results (
			id, external_id, transaction_id, method,
			confidence, status, criteria
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, query,
		mr.ID,
		mr.ExternalID,
		mr.TransactionID,
		mr.Method,
		mr.Confidence,
		mr.Status,
		mr.Criteria,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return apperrors.ErrAlreadyReconciled
		}
		return err
	}

	linkQuery := `
		INSERT INTO match_result_candidates (match_result_id, candidate_id)
		VALUES (?, ?)
	`
	for _, candidateID := range mr.CandidateIDs {
		if _, err := tx.ExecContext(ctx, linkQuery, mr.ID, candidateID); err != nil {
			return err
		}
	}
	return nil
}

func (r *reconciliationRepository) GetMatchResultByExternalID(ctx context.Context, externalID string) (*models.MatchResult, error) {
	mr := &models.MatchResult{}
	query := `
		SELECT id, external_id, transaction_id, method,
		       confidence, status, criteria, created_at
		FROM match_results
		WHERE external_id = ?
	`
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(
		&mr.ID,
		&mr.ExternalID,
		&mr.TransactionID,
		&mr.Method,
		&mr.Confidence,
		&mr.Status,
		&mr.Criteria,
		&mr.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	linkQuery := `
		SELECT candidate_id
		FROM match_result_candidates
		WHERE match_result_id = ?
		ORDER BY candidate_id
	`
	rows, err := r.db.QueryContext(ctx, linkQuery, mr.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var candidateID int64
		if err := rows.Scan(&candidateID); err != nil {
			return nil, err
		}
		mr.CandidateIDs = append(mr.CandidateIDs, candidateID)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return mr, nil
}

func (r *reconciliationRepository) DeleteMatchResult(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM match_result_candidates WHERE match_result_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM match_results WHERE id = ?`, id)
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

func (r *reconciliationRepository) InsertBatch(ctx context.Context, b *models.ReconciliationBatch) error {
	query := `
		INSERT INTO reconciliation_batches (
			id, status, processed, auto_settled, suggested, needs_review
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		b.ID,
		b.Status,
		b.Processed,
		b.AutoSettled,
		b.Suggested,
		b.NeedsReview,
	)
	return err
}

func (r *reconciliationRepository) UpdateBatch(ctx context.Context, b *models.ReconciliationBatch) error {
	query := `
		UPDATE reconciliation_batches
		SET status = ?,
			processed = ?,
			auto_settled = ?,
			suggested = ?,
			needs_review = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		b.Status,
		b.Processed,
		b.AutoSettled,
		b.Suggested,
		b.NeedsReview,
		time.Now(),
		b.ID,
	)
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

func (r *reconciliationRepository) GetBatchByID(ctx context.Context, id string) (*models.ReconciliationBatch, error) {
	b := &models.ReconciliationBatch{}
	query := `
		SELECT id, status, processed, auto_settled, suggested, needs_review,
		       created_at, updated_at
		FROM reconciliation_batches
		WHERE id = ?
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID,
		&b.Status,
		&b.Processed,
		&b.AutoSettled,
		&b.Suggested,
		&b.NeedsReview,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
