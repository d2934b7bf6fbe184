package export

import (
	"strings"

	"github.com/dvloznov/statement-converter/internal/domain"
)

// CSV renders txs with a header row. Date, description and source file are
// always double-quoted with embedded quotes doubled; amounts are unquoted and
// empty when absent. Rows are joined by "\n" without a trailing newline.
func CSV(txs []domain.Transaction) string {
	lines := make([]string, 0, len(txs)+1)
	lines = append(lines, strings.Join(Header, ","))
	for _, tx := range txs {
		lines = append(lines, csvRow(tx))
	}
	return strings.Join(lines, "\n")
}

func csvRow(tx domain.Transaction) string {
	return strings.Join([]string{
		quote(tx.Date),
		quote(tx.Description),
		formatOptional(tx.Debit),
		formatOptional(tx.Credit),
		formatAmount(tx.Balance),
		quote(tx.SourceFile),
	}, ",")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
