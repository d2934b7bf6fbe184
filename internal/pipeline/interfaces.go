package pipeline

import (
	"context"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/dvloznov/statement-converter/internal/pdfdoc"
	"github.com/dvloznov/statement-converter/internal/usage"
	"google.golang.org/genai"
)

// ModelRequest is one schema-constrained call to the generative model.
type ModelRequest struct {
	// Kind labels the call for logs and metrics.
	Kind   string
	Prompt string
	// Images are sent as inline parts after the prompt, in order.
	Images []pdfdoc.PageImage
	Schema *genai.Schema
}

// ModelClient abstracts the hosted model so tests can run without network.
type ModelClient interface {
	// GenerateJSON returns the raw JSON text produced for req.
	GenerateJSON(ctx context.Context, req ModelRequest) (string, error)
}

// Prober classifies a PDF before conversion.
type Prober interface {
	Probe(data []byte) pdfdoc.ProbeResult
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(data []byte) pdfdoc.ProbeResult

// Probe calls f(data).
func (f ProbeFunc) Probe(data []byte) pdfdoc.ProbeResult { return f(data) }

// Renderer turns a PDF into page images.
type Renderer interface {
	Render(ctx context.Context, data []byte, password string) ([]pdfdoc.PageImage, error)
}

// TransactionExtractor turns page images of one file into transactions.
type TransactionExtractor interface {
	ExtractTransactions(ctx context.Context, pages []pdfdoc.PageImage, sourceFile string) ([]domain.Transaction, error)
}

// Advisor produces insights and goal plans over merged transactions.
type Advisor interface {
	Insights(ctx context.Context, txs []domain.Transaction) (*domain.FinancialInsights, error)
	GoalPlan(ctx context.Context, txs []domain.Transaction, goal domain.GoalInput) (*domain.GoalPlan, error)
}

// UsageGate is the billing collaborator: a yes/no before a run and a
// best-effort record after a successful one.
type UsageGate interface {
	CanConvert(ctx context.Context, userID string) (bool, error)
	RecordConversion(ctx context.Context, rec usage.Record) error
}

var (
	_ Prober               = ProbeFunc(pdfdoc.Probe)
	_ Renderer             = (*pdfdoc.Rasterizer)(nil)
	_ UsageGate            = (*usage.Gate)(nil)
	_ TransactionExtractor = (*Extractor)(nil)
	_ Advisor              = (*Analyst)(nil)
	_ ModelClient          = (*GeminiClient)(nil)
)
