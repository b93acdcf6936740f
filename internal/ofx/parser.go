// Package ofx converts OFX/QFX bank statements into statement
// transactions ready for ingestion. The FITID of each entry becomes
// the transaction external id, which downstream layers rely on for
// idempotent imports.
package ofx

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"concilia/internal/apperrors"
	"concilia/internal/models"
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

var severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)

// preprocess fixes formatting quirks common in bank-exported OFX
// files before handing them to the strict parser.
func (p *Parser) preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return content
}

// Parse reads an OFX document and returns its statement transactions.
// Entries without a FITID are skipped; they cannot be imported
// idempotently.
func (p *Parser) Parse(reader io.Reader) ([]*models.Transaction, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX document: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	var transactions []*models.Transaction
	var skipped int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		accountID := string(stmt.BankAcctFrom.AcctID)
		for _, ofxTx := range stmt.BankTranList.Transactions {
			t := convertTransaction(ofxTx, accountID)
			if t.ExternalID == "" {
				skipped++
				continue
			}
			transactions = append(transactions, t)
		}
	}

	if skipped > 0 {
		slog.Warn("Skipped statement entries without FITID", "skipped", skipped)
	}
	slog.Info("Parsed OFX document", "transactions", len(transactions))
	return transactions, nil
}

func convertTransaction(ofxTx ofxgo.Transaction, accountID string) *models.Transaction {
	return &models.Transaction{
		ExternalID:      string(ofxTx.FiTID),
		AccountID:       accountID,
		Amount:          decimal.NewFromBigRat(&ofxTx.TrnAmt.Rat, 2),
		TransactionDate: ofxTx.DtPosted.Time,
		Description:     buildDescription(ofxTx),
		Status:          models.TxStatusUnmatched,
	}
}

// buildDescription joins NAME and MEMO. Brazilian banks split the
// operation label and the payer details across the two fields, and the
// extractor needs both.
func buildDescription(ofxTx ofxgo.Transaction) string {
	name := strings.TrimSpace(string(ofxTx.Name))
	memo := strings.TrimSpace(string(ofxTx.Memo))
	switch {
	case name == "":
		return memo
	case memo == "" || memo == name:
		return name
	default:
		return name + " " + memo
	}
}
