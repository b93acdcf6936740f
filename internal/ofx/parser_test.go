package ofx

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concilia/internal/apperrors"
	"concilia/internal/models"
)

const sampleOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20250310120000
<LANGUAGE>POR
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>BRL
<BANKACCTFROM>
<BANKID>0341
<ACCTID>12345-6
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20250301
<DTEND>20250331
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20250310
<TRNAMT>1500.00
<FITID>FIT001
<NAME>PIX_CRED 12345678000190
<MEMO>EMPRESA EXEMPLO LTDA
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20250312
<TRNAMT>-250.50
<FITID>FIT002
<NAME>PAG BOLETO
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1249.50
<DTASOF>20250331
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func TestParseStatement(t *testing.T) {
	p := NewParser()
	transactions, err := p.Parse(strings.NewReader(sampleOFX))
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	credit := transactions[0]
	assert.Equal(t, "FIT001", credit.ExternalID)
	assert.Equal(t, "12345-6", credit.AccountID)
	assert.True(t, credit.Amount.Equal(decimal.RequireFromString("1500.00")), "got %s", credit.Amount)
	assert.Equal(t, "PIX_CRED 12345678000190 EMPRESA EXEMPLO LTDA", credit.Description)
	assert.Equal(t, models.TxStatusUnmatched, credit.Status)
	assert.Equal(t, 2025, credit.TransactionDate.Year())

	debit := transactions[1]
	assert.Equal(t, "FIT002", debit.ExternalID)
	assert.True(t, debit.Amount.IsNegative())
	assert.Equal(t, "PAG BOLETO", debit.Description)
}

func TestParseLeadingWhitespaceAndMixedCaseSeverity(t *testing.T) {
	mangled := "\r\n  " + strings.ReplaceAll(sampleOFX, "<SEVERITY>INFO", "<SEVERITY>Info")
	p := NewParser()
	transactions, err := p.Parse(strings.NewReader(mangled))
	require.NoError(t, err)
	assert.Len(t, transactions, 2)
}

func TestParseRejectsGarbage(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(strings.NewReader("not an ofx document"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
