// Package export renders merged transactions for download and clipboard use,
// and reads earlier CSV exports back in.
package export

import (
	"fmt"
	"strings"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/shopspring/decimal"
)

// Format names an export format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// DefaultBaseName is the download name without extension.
const DefaultBaseName = "combined_transactions"

// Header lists the exported columns in order.
var Header = []string{"Date", "Description", "Debit", "Credit", "Balance", "SourceFile"}

// ParseFormat maps a name such as "CSV" to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatTSV, FormatXLSX:
		return f, nil
	case "":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatTSV:
		return "text/tab-separated-values; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns the download name for the format.
func (f Format) Filename() string {
	return DefaultBaseName + "." + string(f)
}

// formatAmount prints v in its shortest decimal form: 4.5, 120, -0.01.
func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatAmount(*v)
}

// Render produces the export of txs in format f.
func Render(f Format, txs []domain.Transaction) ([]byte, error) {
	switch f {
	case FormatCSV:
		return []byte(CSV(txs)), nil
	case FormatTSV:
		return []byte(TSV(txs)), nil
	case FormatXLSX:
		return XLSX(txs)
	}
	return nil, fmt.Errorf("Render: unsupported export format %q", f)
}
