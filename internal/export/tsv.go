package export

import (
	"strings"

	"github.com/dvloznov/statement-converter/internal/domain"
)

var tsvCleaner = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// TSV renders txs tab separated for pasting into spreadsheets. Fields are not
// quoted; tabs and line breaks inside a field become spaces so that each
// transaction stays on one row.
func TSV(txs []domain.Transaction) string {
	lines := make([]string, 0, len(txs)+1)
	lines = append(lines, strings.Join(Header, "\t"))
	for _, tx := range txs {
		lines = append(lines, strings.Join([]string{
			tsvCleaner.Replace(tx.Date),
			tsvCleaner.Replace(tx.Description),
			formatOptional(tx.Debit),
			formatOptional(tx.Credit),
			formatAmount(tx.Balance),
			tsvCleaner.Replace(tx.SourceFile),
		}, "\t"))
	}
	return strings.Join(lines, "\n")
}
