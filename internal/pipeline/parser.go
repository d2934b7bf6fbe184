package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/dvloznov/statement-converter/internal/logger"
	"github.com/dvloznov/statement-converter/internal/pdfdoc"
)

// Extractor sends the page images of one statement to the model and parses
// the transactions it returns.
type Extractor struct {
	model ModelClient
}

// NewExtractor creates an Extractor backed by model.
func NewExtractor(model ModelClient) *Extractor {
	return &Extractor{model: model}
}

// ExtractTransactions makes a single model call for pages and tags every
// transaction with sourceFile. An empty array is a valid result. Every
// failure is logged with its cause and returned as a UserError with a
// generic message.
func (e *Extractor) ExtractTransactions(ctx context.Context, pages []pdfdoc.PageImage, sourceFile string) ([]domain.Transaction, error) {
	log := logger.FromContext(ctx)

	txs, err := e.extract(ctx, pages)
	if err != nil {
		log.Error().
			Err(err).
			Str("source_file", sourceFile).
			Int("pages", len(pages)).
			Msg("Error processing statement with model")
		return nil, &UserError{Msg: MsgExtractionFailed, Err: err}
	}

	for i := range txs {
		txs[i].SourceFile = sourceFile
	}

	log.Info().
		Str("source_file", sourceFile).
		Int("pages", len(pages)).
		Int("transactions", len(txs)).
		Msg("Extracted transactions")

	return txs, nil
}

func (e *Extractor) extract(ctx context.Context, pages []pdfdoc.PageImage) ([]domain.Transaction, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("extract: document has no pages")
	}

	raw, err := e.model.GenerateJSON(ctx, ModelRequest{
		Kind:   KindExtract,
		Prompt: extractionPrompt,
		Images: pages,
		Schema: transactionSchema,
	})
	if err != nil {
		return nil, err
	}

	return parseTransactions(raw)
}

// parseTransactions decodes the model response verbatim. Only surrounding
// whitespace is removed; anything else that is not a JSON array of valid
// transactions is rejected.
func parseTransactions(raw string) ([]domain.Transaction, error) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parseTransactions: unmarshal JSON: %w", err)
	}

	txs, err := transformModelOutputToTransactions(parsed)
	if err != nil {
		return nil, fmt.Errorf("parseTransactions: %w", err)
	}
	return txs, nil
}
