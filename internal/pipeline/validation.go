package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/statement-converter/internal/domain"
)

// validateTransaction enforces the extraction contract on one record and
// normalizes it in place: zero debit or credit amounts become absent.
// A record violating the contract fails the whole file.
func validateTransaction(tx *domain.Transaction) error {
	if strings.TrimSpace(tx.Date) == "" {
		return errors.New("required field \"date\" is empty")
	}

	tx.Debit = dropZero(tx.Debit)
	tx.Credit = dropZero(tx.Credit)

	if tx.Debit != nil && *tx.Debit < 0 {
		return fmt.Errorf("debit %v is negative", *tx.Debit)
	}
	if tx.Credit != nil && *tx.Credit < 0 {
		return fmt.Errorf("credit %v is negative", *tx.Credit)
	}
	if tx.Debit != nil && tx.Credit != nil {
		return fmt.Errorf("both debit %v and credit %v are set", *tx.Debit, *tx.Credit)
	}
	return nil
}

func dropZero(v *float64) *float64 {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}
