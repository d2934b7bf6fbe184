package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// exportRow mirrors one line of a CSV or TSV export.
type exportRow struct {
	Date        string `csv:"Date"`
	Description string `csv:"Description"`
	Debit       string `csv:"Debit"`
	Credit      string `csv:"Credit"`
	Balance     string `csv:"Balance"`
	SourceFile  string `csv:"SourceFile"`
}

// ReadCSV parses a CSV export back into transactions.
func ReadCSV(r io.Reader) ([]domain.Transaction, error) {
	return read(r, ',')
}

// ReadTSV parses a clipboard export back into transactions.
func ReadTSV(r io.Reader) ([]domain.Transaction, error) {
	return read(r, '\t')
}

func read(r io.Reader, comma rune) ([]domain.Transaction, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.LazyQuotes = comma == '\t'

	var rows []exportRow
	if err := gocsv.UnmarshalCSV(cr, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse export: %w", err)
	}

	txs := make([]domain.Transaction, 0, len(rows))
	for i, row := range rows {
		tx, err := row.transaction()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (r exportRow) transaction() (domain.Transaction, error) {
	debit, err := parseOptional("Debit", r.Debit)
	if err != nil {
		return domain.Transaction{}, err
	}
	credit, err := parseOptional("Credit", r.Credit)
	if err != nil {
		return domain.Transaction{}, err
	}
	balance, err := parseOptional("Balance", r.Balance)
	if err != nil {
		return domain.Transaction{}, err
	}
	if balance == nil {
		return domain.Transaction{}, fmt.Errorf("missing Balance")
	}

	return domain.Transaction{
		Date:        r.Date,
		Description: r.Description,
		Debit:       debit,
		Credit:      credit,
		Balance:     *balance,
		SourceFile:  r.SourceFile,
	}, nil
}

func parseOptional(column, s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", column, s, err)
	}
	v := d.InexactFloat64()
	return &v, nil
}
