package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"concilia/internal/apperrors"
	"concilia/internal/models"
	"concilia/internal/normalize"
)

type PatternRepository interface {
	FindMatching(ctx context.Context, description string) (*models.LearnedPattern, error)
	Reinforce(ctx context.Context, description string, counterpartyID int64) error
}

type patternRepository struct {
	db *sql.DB
}

func NewPatternRepository(db *sql.DB) PatternRepository {
	return &patternRepository{db: db}
}

// FindMatching returns the strongest learned pattern whose text occurs
// in the normalized description. Candidate patterns are few enough to
// scan in memory; containment cannot be expressed as an indexable
// predicate anyway.
func (r *patternRepository) FindMatching(ctx context.Context, description string) (*models.LearnedPattern, error) {
	normalized := normalize.Normalize(description)
	if normalized == "" {
		return nil, apperrors.ErrNotFound
	}

	query := `
		SELECT id, pattern_text, counterparty_id, usage_count,
		       confidence, last_used_at, created_at
		FROM learned_patterns
		ORDER BY usage_count DESC, confidence DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p := &models.LearnedPattern{}
		err := rows.Scan(
			&p.ID,
			&p.PatternText,
			&p.CounterpartyID,
			&p.UsageCount,
			&p.Confidence,
			&p.LastUsedAt,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if strings.Contains(normalized, p.PatternText) {
			return p, nil
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return nil, apperrors.ErrNotFound
}

// Reinforce records that a description resolved to a counterparty.
// An existing pattern gains a usage and confidence; a fresh one starts
// at a middling confidence that later confirmations raise.
func (r *patternRepository) Reinforce(ctx context.Context, description string, counterpartyID int64) error {
	patternText := patternFragment(description)
	if patternText == "" {
		return nil
	}

	now := time.Now()
	existing := &models.LearnedPattern{}
	query := `
		SELECT id, usage_count, confidence
		FROM learned_patterns
		WHERE pattern_text = ?
		AND counterparty_id = ?
	`
	err := r.db.QueryRowContext(ctx, query, patternText, counterpartyID).Scan(
		&existing.ID,
		&existing.UsageCount,
		&existing.Confidence,
	)
	if errors.Is(err, sql.ErrNoRows) {
		insert := `
			INSERT INTO learned_patterns (
				pattern_text, counterparty_id, usage_count, confidence, last_used_at
			) VALUES (?, ?, 1, 60.0, ?)
		`
		_, err = r.db.ExecContext(ctx, insert, patternText, counterpartyID, now)
		return err
	}
	if err != nil {
		return err
	}

	confidence := existing.Confidence + 5.0
	if confidence > 95.0 {
		confidence = 95.0
	}
	update := `
		UPDATE learned_patterns
		SET usage_count = usage_count + 1,
			confidence = ?,
			last_used_at = ?
		WHERE id = ?
	`
	_, err = r.db.ExecContext(ctx, update, confidence, now, existing.ID)
	return err
}

// patternFragment keeps the leading tokens of the normalized
// description, enough to identify the payer without binding to
// per-transaction digits.
func patternFragment(description string) string {
	tokens := normalize.Tokens(description)
	kept := make([]string, 0, 4)
	for _, tok := range tokens {
		if isNumeric(tok) {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == 4 {
			break
		}
	}
	return strings.Join(kept, " ")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
