package export

import (
	"bytes"
	"fmt"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding exported transactions.
const SheetName = "Transactions"

// XLSX renders txs as an Excel workbook with one Transactions sheet.
// Amounts are stored as numbers; absent amounts are left blank.
func XLSX(txs []domain.Transaction) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("XLSX: rename sheet: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("XLSX: write header: %w", err)
	}

	for i, tx := range txs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("XLSX: %w", err)
		}
		row := []interface{}{
			tx.Date,
			tx.Description,
			optionalCell(tx.Debit),
			optionalCell(tx.Credit),
			tx.Balance,
			tx.SourceFile,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("XLSX: write row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("XLSX: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func optionalCell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
