package pipeline

import (
	"fmt"

	"github.com/dvloznov/statement-converter/internal/domain"
)

// transformModelOutputToTransactions converts the decoded model output into
// transactions. The output must be an array of objects.
func transformModelOutputToTransactions(output interface{}) ([]domain.Transaction, error) {
	txSlice, ok := output.([]interface{})
	if !ok {
		return nil, fmt.Errorf("transformModelOutputToTransactions: output is %T, want []interface{}", output)
	}

	result := make([]domain.Transaction, 0, len(txSlice))

	for i, item := range txSlice {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("transformModelOutputToTransactions: element %d is %T, want map[string]interface{}", i, item)
		}

		date, err := getStringField(obj, "date", true)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		desc, err := getStringField(obj, "description", true)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		balance, err := getFloat64Field(obj, "balance", true)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}

		// Optional fields
		debit, err := getOptionalFloat64Field(obj, "debit")
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		credit, err := getOptionalFloat64Field(obj, "credit")
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}

		tx := domain.Transaction{
			Date:        date,
			Description: desc,
			Debit:       debit,
			Credit:      credit,
			Balance:     balance,
		}
		if err := validateTransaction(&tx); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}

		result = append(result, tx)
	}

	return result, nil
}

// getStringField reads a string. Required fields must be present; an empty
// string is accepted and left to validation.
func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		return val, nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getFloat64Field(m map[string]interface{}, key string, required bool) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return 0, fmt.Errorf("missing required field %q", key)
		}
		return 0, nil
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case int: // unlikely from encoding/json, but harmless to support
		return float64(val), nil
	default:
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}

func getOptionalFloat64Field(m map[string]interface{}, key string) (*float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case float64:
		f := val
		return &f, nil
	case int:
		f := float64(val)
		return &f, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}
}
