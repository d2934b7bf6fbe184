package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/dvloznov/statement-converter/internal/logger"
	"github.com/jomei/notionapi"
)

const (
	// BatchSize defines the number of transactions to process in a single batch
	BatchSize = 100

	queryPageSize = 100
)

// Result summarises an export run.
type Result struct {
	Created int
	Skipped int
	Failed  int
}

// ExportTransactions creates one Notion page per transaction in the database
// notionDBID. Transactions whose Transaction ID already exists in the
// database are skipped. Individual page failures are logged and counted;
// only a failure to read the database aborts the export. With dryRun set
// nothing is written.
func ExportTransactions(ctx context.Context, notionClient NotionService, notionDBID string, txs []domain.Transaction, dryRun bool) (*Result, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Int("transactions", len(txs)).
		Bool("dry_run", dryRun).
		Msg("Starting transaction export to Notion")

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("ExportTransactions: %w", err)
	}

	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		if id := extractTransactionID(page); id != "" {
			existing[id] = true
		}
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	res := &Result{}
	for i := 0; i < len(txs); i += BatchSize {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("ExportTransactions: %w", err)
		}

		end := i + BatchSize
		if end > len(txs) {
			end = len(txs)
		}
		batch := txs[i:end]
		log.Info().
			Int("batch_start", i).
			Int("batch_end", end).
			Int("batch_size", len(batch)).
			Msg("Processing batch")

		for _, tx := range batch {
			key := TransactionKey(tx)
			if existing[key] {
				res.Skipped++
				continue
			}

			if dryRun {
				log.Info().
					Str("transaction_id", key).
					Str("date", tx.Date).
					Msg("[DRY RUN] Would create new Notion page")
				res.Created++
				existing[key] = true
				continue
			}

			page, err := notionClient.CreatePage(ctx, notionDBID, TransactionToNotionProperties(tx))
			if err != nil {
				log.Warn().
					Err(err).
					Str("transaction_id", key).
					Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			log.Debug().
				Str("transaction_id", key).
				Str("page_id", string(page.ID)).
				Msg("Created Notion page")
			res.Created++
			existing[key] = true
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("total", len(txs)).
		Bool("dry_run", dryRun).
		Msg("Notion export completed")

	return res, nil
}

// queryAllNotionPages follows pagination until every page has been read.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: queryPageSize,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
