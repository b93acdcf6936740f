// Package decision applies the settlement policy to scored matches.
// It owns the only write path that settles candidates and records
// match results, so idempotency and concurrency guarantees live here.
package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"concilia/internal/advisor"
	"concilia/internal/apperrors"
	"concilia/internal/config"
	"concilia/internal/extract"
	"concilia/internal/matching"
	"concilia/internal/models"
	"concilia/internal/repositories"
)

// Review reasons recorded on outcomes that need a human.
const (
	ReasonNoMatch        = "no_match"
	ReasonBelowThreshold = "below_threshold"
	ReasonGroupedDefer   = "grouped_deferred"
	ReasonConflict       = "conflicting_settlement"
	ReasonImbalanced     = "imbalanced_combination"
)

// Outcome is the result of deciding one transaction.
type Outcome struct {
	Status  string              `json:"status"`
	Reason  string              `json:"reason,omitempty"`
	Result  *models.MatchResult `json:"result,omitempty"`
	Matches []matching.Match    `json:"matches,omitempty"`
}

type Policy struct {
	db           *sql.DB
	transactions repositories.TransactionRepository
	candidates   repositories.CandidateRepository
	results      repositories.ReconciliationRepository
	patterns     repositories.PatternRepository
	engine       *matching.Engine
	advisor      advisor.Advisor
	cfg          config.MatcherConfig
}

func NewPolicy(
	db *sql.DB,
	transactions repositories.TransactionRepository,
	candidates repositories.CandidateRepository,
	results repositories.ReconciliationRepository,
	patterns repositories.PatternRepository,
	engine *matching.Engine,
	adv advisor.Advisor,
	cfg config.MatcherConfig,
) *Policy {
	if adv == nil {
		adv = advisor.Disabled{}
	}
	return &Policy{
		db:           db,
		transactions: transactions,
		candidates:   candidates,
		results:      results,
		patterns:     patterns,
		engine:       engine,
		advisor:      adv,
		cfg:          cfg,
	}
}

// Decide evaluates a transaction against the open candidate pool and
// routes it to auto settlement, a suggestion, or review. Deciding the
// same external id twice is a no-op that reports the stored result.
func (p *Policy) Decide(ctx context.Context, tx *models.Transaction, pool []matching.Candidate) (*Outcome, error) {
	existing, err := p.results.GetMatchResultByExternalID(ctx, tx.ExternalID)
	if err == nil {
		return &Outcome{Status: statusForResult(existing), Result: existing}, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	hints := extract.Extract(tx.Description)

	if hints.IsGrouped() && p.cfg.GroupedMode == config.GroupedModeDefer {
		return p.review(ctx, tx, ReasonGroupedDefer, nil)
	}

	matches := p.engine.Evaluate(tx, hints, pool)
	if len(matches) == 0 || matches[0].Confidence < p.cfg.SuggestThreshold {
		if m, ok := p.patternFallback(ctx, tx, pool); ok && m.Confidence >= p.cfg.SuggestThreshold {
			matches = append([]matching.Match{m}, matches...)
		}
	}
	if len(matches) == 0 {
		return p.review(ctx, tx, ReasonNoMatch, nil)
	}

	best := matches[0]
	if best.Confidence >= p.cfg.AutoSettleThreshold {
		outcome, err := p.settle(ctx, tx, best, models.MatchStatusSettled, models.TxStatusAutoSettled)
		if err == nil || !errors.Is(err, apperrors.ErrConflictingSettlement) {
			return outcome, err
		}
		slog.Warn("Lost settlement race, routing to review",
			"external_id", tx.ExternalID,
			"candidate_ids", best.CandidateIDs)
		return p.review(ctx, tx, ReasonConflict, matches)
	}

	if best.Confidence >= p.cfg.SuggestThreshold {
		// Only the suggest band is offered for reranking; the advisor
		// must not be able to promote a match below the threshold.
		band := matches[:1]
		for _, m := range matches[1:] {
			if m.Confidence < p.cfg.SuggestThreshold {
				break
			}
			band = append(band, m)
		}
		band = p.advisor.Rerank(ctx, tx, band)
		return p.suggest(ctx, tx, band)
	}

	return p.review(ctx, tx, ReasonBelowThreshold, matches)
}

// Confirm settles a suggested or reviewed transaction with the
// candidates an operator picked. A previously stored suggestion for
// the same external id is replaced; a settled one is final.
func (p *Policy) Confirm(ctx context.Context, externalID string, candidateIDs []int64) (*Outcome, error) {
	if len(candidateIDs) == 0 {
		return nil, apperrors.ErrValidation
	}

	tx, err := p.transactions.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	existing, err := p.results.GetMatchResultByExternalID(ctx, externalID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if err == nil && existing.Status == models.MatchStatusSettled {
		return nil, apperrors.ErrAlreadyReconciled
	}

	match := matching.Match{
		CandidateIDs: candidateIDs,
		Method:       models.MethodManual,
		Confidence:   100,
		Criteria:     []string{"manual_confirmation"},
	}
	for _, id := range candidateIDs {
		c, err := p.candidates.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		match.Candidates = append(match.Candidates, c)
	}

	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback()

	if existing != nil {
		if err := p.results.DeleteMatchResult(ctx, dbTx, existing.ID); err != nil {
			return nil, err
		}
	}

	result, err := p.persistSettlement(ctx, dbTx, tx, match, models.MatchStatusSettled, models.TxStatusAutoSettled)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, err
	}

	p.reinforce(ctx, tx, match)
	slog.Info("Manual settlement confirmed",
		"external_id", externalID,
		"candidate_ids", candidateIDs)
	return &Outcome{Status: models.TxStatusAutoSettled, Result: result}, nil
}

func (p *Policy) settle(ctx context.Context, tx *models.Transaction, match matching.Match, resultStatus, txStatus string) (*Outcome, error) {
	if !p.engine.SumWithinTolerance(tx, match) {
		slog.Error("Match failed balance check",
			"external_id", tx.ExternalID,
			"method", match.Method,
			"error", apperrors.ErrImbalancedCombination)
		return p.review(ctx, tx, ReasonImbalanced, []matching.Match{match})
	}

	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback()

	result, err := p.persistSettlement(ctx, dbTx, tx, match, resultStatus, txStatus)
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyReconciled) {
			// another worker won the insert; report its result
			if stored, lookupErr := p.results.GetMatchResultByExternalID(ctx, tx.ExternalID); lookupErr == nil {
				return &Outcome{Status: statusForResult(stored), Result: stored}, nil
			}
		}
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, err
	}

	p.reinforce(ctx, tx, match)
	slog.Info("Transaction auto settled",
		"external_id", tx.ExternalID,
		"method", match.Method,
		"confidence", match.Confidence,
		"candidate_ids", match.CandidateIDs)
	return &Outcome{Status: txStatus, Result: result}, nil
}

// persistSettlement writes the settlement inside dbTx: candidates are
// marked paid through the status-guarded update, the result row is
// inserted under the external id unique key, and the transaction
// status flips.
func (p *Policy) persistSettlement(ctx context.Context, dbTx *sql.Tx, tx *models.Transaction, match matching.Match, resultStatus, txStatus string) (*models.MatchResult, error) {
	now := time.Now()
	for _, id := range match.CandidateIDs {
		if err := p.candidates.Settle(ctx, dbTx, id, now); err != nil {
			return nil, err
		}
	}

	result, err := p.buildResult(tx, match, resultStatus)
	if err != nil {
		return nil, err
	}
	if err := p.results.InsertMatchResult(ctx, dbTx, result); err != nil {
		return nil, err
	}
	if err := p.transactions.UpdateStatus(ctx, dbTx, tx.ID, txStatus); err != nil {
		return nil, err
	}
	tx.Status = txStatus
	return result, nil
}

func (p *Policy) suggest(ctx context.Context, tx *models.Transaction, matches []matching.Match) (*Outcome, error) {
	best := matches[0]
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback()

	result, err := p.buildResult(tx, best, models.MatchStatusSuggested)
	if err != nil {
		return nil, err
	}
	if err := p.results.InsertMatchResult(ctx, dbTx, result); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyReconciled) {
			if stored, lookupErr := p.results.GetMatchResultByExternalID(ctx, tx.ExternalID); lookupErr == nil {
				return &Outcome{Status: statusForResult(stored), Result: stored}, nil
			}
		}
		return nil, err
	}
	if err := p.transactions.UpdateStatus(ctx, dbTx, tx.ID, models.TxStatusSuggested); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, err
	}

	tx.Status = models.TxStatusSuggested
	slog.Info("Suggestion recorded",
		"external_id", tx.ExternalID,
		"method", best.Method,
		"confidence", best.Confidence)
	return &Outcome{Status: models.TxStatusSuggested, Result: result, Matches: matches}, nil
}

func (p *Policy) review(ctx context.Context, tx *models.Transaction, reason string, matches []matching.Match) (*Outcome, error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback()

	if err := p.transactions.UpdateStatus(ctx, dbTx, tx.ID, models.TxStatusNeedsReview); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, err
	}

	tx.Status = models.TxStatusNeedsReview
	return &Outcome{Status: models.TxStatusNeedsReview, Reason: reason, Matches: matches}, nil
}

// patternFallback consults learned description patterns when scoring
// produced nothing. A hit only becomes a suggestion when the mapped
// counterparty has a single open candidate with the exact amount.
func (p *Policy) patternFallback(ctx context.Context, tx *models.Transaction, pool []matching.Candidate) (matching.Match, bool) {
	pattern, err := p.patterns.FindMatching(ctx, tx.Description)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			slog.Warn("Pattern lookup failed", "external_id", tx.ExternalID, "error", err)
		}
		return matching.Match{}, false
	}

	cfg := p.engine.Config()
	var hit *models.Candidate
	for _, c := range pool {
		if c.Candidate.CounterpartyID != pattern.CounterpartyID {
			continue
		}
		if tx.Amount.Abs().Sub(c.Candidate.Amount.Abs()).Abs().GreaterThan(cfg.AmountTolerance) {
			continue
		}
		if hit != nil {
			// ambiguous, let a human pick
			return matching.Match{}, false
		}
		hit = c.Candidate
	}
	if hit == nil {
		return matching.Match{}, false
	}

	return matching.Match{
		CandidateIDs: []int64{hit.ID},
		Candidates:   []*models.Candidate{hit},
		Method:       models.MethodPattern,
		Confidence:   pattern.Confidence,
		Criteria:     []string{"learned_pattern", "exact_amount"},
	}, true
}

func (p *Policy) reinforce(ctx context.Context, tx *models.Transaction, match matching.Match) {
	if len(match.Candidates) == 0 {
		return
	}
	counterpartyID := match.Candidates[0].CounterpartyID
	if err := p.patterns.Reinforce(ctx, tx.Description, counterpartyID); err != nil {
		slog.Warn("Pattern reinforcement failed",
			"external_id", tx.ExternalID,
			"counterparty_id", counterpartyID,
			"error", err)
	}
}

func (p *Policy) buildResult(tx *models.Transaction, match matching.Match, status string) (*models.MatchResult, error) {
	criteria, err := json.Marshal(match.Criteria)
	if err != nil {
		return nil, err
	}
	return &models.MatchResult{
		ID:            uuid.New().String(),
		ExternalID:    tx.ExternalID,
		TransactionID: tx.ID,
		CandidateIDs:  match.CandidateIDs,
		Method:        match.Method,
		Confidence:    match.Confidence,
		Status:        status,
		Criteria:      criteria,
	}, nil
}

func statusForResult(mr *models.MatchResult) string {
	if mr.Status == models.MatchStatusSettled {
		return models.TxStatusAutoSettled
	}
	return models.TxStatusSuggested
}
