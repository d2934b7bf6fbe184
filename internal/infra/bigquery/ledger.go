package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-converter/internal/logger"
	"github.com/dvloznov/statement-converter/internal/usage"
	"google.golang.org/api/iterator"
)

// Ledger stores conversion history in BigQuery. It holds a shared client so
// every call reuses one connection.
type Ledger struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewLedger creates a Ledger for projectID writing to datasetID.
func NewLedger(ctx context.Context, projectID, datasetID string) (*Ledger, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewLedger: creating client: %w", err)
	}
	return NewLedgerWithClient(client, datasetID), nil
}

// NewLedgerWithClient wraps an existing client.
func NewLedgerWithClient(client *bigquery.Client, datasetID string) *Ledger {
	return &Ledger{
		client:    client,
		projectID: client.Project(),
		datasetID: datasetID,
	}
}

// Close closes the BigQuery client connection.
func (l *Ledger) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

func (l *Ledger) table() string {
	return fmt.Sprintf("`%s.%s.%s`", l.projectID, l.datasetID, conversionsTable)
}

// Append inserts one conversion into conversions_history.
func (l *Ledger) Append(ctx context.Context, rec usage.Record) error {
	row := newConversionRow(rec)

	q := l.client.Query(fmt.Sprintf(`
		INSERT %s (
			conversion_id,
			user_id,
			session_id,
			filename,
			file_count,
			transaction_count,
			status,
			usage_date,
			created_ts
		)
		VALUES (
			@conversion_id,
			@user_id,
			@session_id,
			@filename,
			@file_count,
			@transaction_count,
			@status,
			@usage_date,
			@created_ts
		)
	`, l.table()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "conversion_id", Value: row.ConversionID},
		{Name: "user_id", Value: row.UserID},
		{Name: "session_id", Value: row.SessionID},
		{Name: "filename", Value: row.Filename},
		{Name: "file_count", Value: row.FileCount},
		{Name: "transaction_count", Value: row.TransactionCount},
		{Name: "status", Value: row.Status},
		{Name: "usage_date", Value: row.UsageDate},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("Append: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("conversion_id", row.ConversionID).
		Str("user_id", row.UserID).
		Int64("transactions", row.TransactionCount).
		Msg("Recorded conversion")
	return nil
}

// CountSince counts successful conversions for userID created at or after since.
func (l *Ledger) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	q := l.client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS n
		FROM %s
		WHERE user_id = @user_id
		  AND status = @status
		  AND created_ts >= @since
	`, l.table()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "status", Value: usage.StatusSuccess},
		{Name: "since", Value: since.UTC()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountSince: reading query: %w", err)
	}

	var row struct {
		N int64 `bigquery:"n"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("CountSince: iterating: %w", err)
	}
	return int(row.N), nil
}

// List returns the most recent conversions of userID, newest first.
func (l *Ledger) List(ctx context.Context, userID string, limit int) ([]usage.Record, error) {
	q := l.client.Query(fmt.Sprintf(`
		SELECT
			conversion_id,
			user_id,
			session_id,
			filename,
			file_count,
			transaction_count,
			status,
			usage_date,
			created_ts
		FROM %s
		WHERE user_id = @user_id
		ORDER BY created_ts DESC
		LIMIT @limit
	`, l.table()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: reading query: %w", err)
	}

	var records []usage.Record
	for {
		var row ConversionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: iterating: %w", err)
		}
		records = append(records, row.Record())
	}
	return records, nil
}

func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

var _ usage.Ledger = (*Ledger)(nil)
