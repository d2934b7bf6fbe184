package bigquery

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-converter/internal/usage"
)

const conversionsTable = "conversions_history"

// ConversionRow is one row of conversions_history.
type ConversionRow struct {
	ConversionID     string     `bigquery:"conversion_id"`
	UserID           string     `bigquery:"user_id"`
	SessionID        string     `bigquery:"session_id"`
	Filename         string     `bigquery:"filename"`
	FileCount        int64      `bigquery:"file_count"`
	TransactionCount int64      `bigquery:"transaction_count"`
	Status           string     `bigquery:"status"`
	UsageDate        civil.Date `bigquery:"usage_date"`
	CreatedTS        time.Time  `bigquery:"created_ts"`
}

// newConversionRow maps a usage record onto the table layout.
func newConversionRow(rec usage.Record) ConversionRow {
	created := rec.CreatedAt.UTC()
	return ConversionRow{
		ConversionID:     rec.ID,
		UserID:           rec.UserID,
		SessionID:        rec.SessionID,
		Filename:         rec.Filename(),
		FileCount:        int64(len(rec.Filenames)),
		TransactionCount: int64(rec.TransactionCount),
		Status:           rec.Status,
		UsageDate:        civil.DateOf(created),
		CreatedTS:        created,
	}
}

// Record converts a stored row back into a usage record.
func (r ConversionRow) Record() usage.Record {
	var names []string
	if r.Filename != "" {
		names = strings.Split(r.Filename, ", ")
	}
	return usage.Record{
		ID:               r.ConversionID,
		UserID:           r.UserID,
		SessionID:        r.SessionID,
		Filenames:        names,
		TransactionCount: int(r.TransactionCount),
		Status:           r.Status,
		CreatedAt:        r.CreatedTS,
	}
}
