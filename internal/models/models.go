package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a bank statement movement. Credits are positive,
// debits negative. Immutable after import except for status and the
// match linkage written by the decision policy.
type Transaction struct {
	ID              int64           `db:"id" json:"id"`
	ExternalID      string          `db:"external_id" json:"external_id"`
	AccountID       string          `db:"account_id" json:"account_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	TransactionDate time.Time       `db:"transaction_date" json:"transaction_date"`
	Description     string          `db:"description" json:"description"`
	Status          string          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"-"`
	UpdatedAt       time.Time       `db:"updated_at" json:"-"`
}

// Candidate is an open financial obligation eligible for settlement:
// an invoice (credit side) or an expense/payable (debit side).
type Candidate struct {
	ID             int64           `db:"id" json:"id"`
	Kind           string          `db:"kind" json:"kind"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	DueDate        time.Time       `db:"due_date" json:"due_date"`
	CounterpartyID int64           `db:"counterparty_id" json:"counterparty_id"`
	DocumentNumber string          `db:"document_number" json:"document_number"`
	Competence     string          `db:"competence" json:"competence"`
	Status         string          `db:"status" json:"status"`
	PaidAt         *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"-"`
	UpdatedAt      time.Time       `db:"updated_at" json:"-"`
}

// Counterparty is the client or supplier a candidate belongs to.
type Counterparty struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	LegalName string  `db:"legal_name" json:"legal_name"`
	TaxID     string  `db:"tax_id" json:"tax_id"`
	Aliases   []Alias `json:"aliases,omitempty"`
}

// Alias is a registered alternate payer for a counterparty, typically
// a company officer who pays on the company's behalf.
type Alias struct {
	ID             int64  `db:"id" json:"id"`
	CounterpartyID int64  `db:"counterparty_id" json:"counterparty_id"`
	Name           string `db:"name" json:"name"`
	TaxID          string `db:"tax_id" json:"tax_id"`
	Active         bool   `db:"active" json:"active"`
}

// MatchResult links a transaction to the candidates that settle it.
// At most one exists per transaction external id; once persisted it is
// never re-derived.
type MatchResult struct {
	ID            string          `db:"id" json:"id"`
	ExternalID    string          `db:"external_id" json:"external_id"`
	TransactionID int64           `db:"transaction_id" json:"transaction_id"`
	CandidateIDs  []int64         `json:"candidate_ids"`
	Method        string          `db:"method" json:"method"`
	Confidence    float64         `db:"confidence" json:"confidence"`
	Status        string          `db:"status" json:"status"`
	Criteria      json.RawMessage `db:"criteria" json:"criteria"`
	CreatedAt     time.Time       `db:"created_at" json:"-"`
}

// LearnedPattern maps a description fragment to a counterparty. It is
// reinforced whenever a manual or automatic resolution confirms the
// mapping and consulted as a fallback when direct matching fails.
type LearnedPattern struct {
	ID             int64      `db:"id" json:"id"`
	PatternText    string     `db:"pattern_text" json:"pattern_text"`
	CounterpartyID int64      `db:"counterparty_id" json:"counterparty_id"`
	UsageCount     int        `db:"usage_count" json:"usage_count"`
	Confidence     float64    `db:"confidence" json:"confidence"`
	LastUsedAt     *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"-"`
}

// ReconciliationBatch records one batch run for status queries.
type ReconciliationBatch struct {
	ID          string    `db:"id" json:"id"`
	Status      string    `db:"status" json:"status"`
	Processed   int       `db:"processed" json:"processed"`
	AutoSettled int       `db:"auto_settled" json:"auto_settled"`
	Suggested   int       `db:"suggested" json:"suggested"`
	NeedsReview int       `db:"needs_review" json:"needs_review"`
	CreatedAt   time.Time `db:"created_at" json:"-"`
	UpdatedAt   time.Time `db:"updated_at" json:"-"`
}

// Transaction status constants
const (
	TxStatusUnmatched   = "unmatched"
	TxStatusAutoSettled = "auto_settled"
	TxStatusSuggested   = "suggested"
	TxStatusNeedsReview = "needs_review"
)

// Candidate kind constants
const (
	CandidateInvoice = "invoice"
	CandidateExpense = "expense"
	CandidatePayable = "payable"
)

// Candidate status constants
const (
	CandidatePending = "pending"
	CandidatePaid    = "paid"
	CandidateOverdue = "overdue"
)

// Match method constants, most to least specific.
const (
	MethodManual      = "manual"
	MethodTaxID       = "tax_id"
	MethodAlias       = "alias"
	MethodExact       = "exact"
	MethodFuzzyName   = "fuzzy_name"
	MethodCombination = "combination"
	MethodPattern     = "pattern_learned"
)

// Match result status constants
const (
	MatchStatusSettled   = "settled"
	MatchStatusSuggested = "suggested"
)

// Batch status constants
const (
	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
)
