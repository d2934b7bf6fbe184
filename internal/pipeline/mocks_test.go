package pipeline

import (
	"context"
	"sync"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/dvloznov/statement-converter/internal/pdfdoc"
	"github.com/dvloznov/statement-converter/internal/usage"
)

// MockModelClient is a mock implementation of ModelClient for testing.
type MockModelClient struct {
	GenerateJSONFunc func(ctx context.Context, req ModelRequest) (string, error)

	mu    sync.Mutex
	Calls []ModelRequest
}

func (m *MockModelClient) GenerateJSON(ctx context.Context, req ModelRequest) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, req)
	}
	return "[]", nil
}

// MockRenderer is a mock implementation of Renderer for testing.
type MockRenderer struct {
	RenderFunc func(ctx context.Context, data []byte, password string) ([]pdfdoc.PageImage, error)
}

func (m *MockRenderer) Render(ctx context.Context, data []byte, password string) ([]pdfdoc.PageImage, error) {
	if m.RenderFunc != nil {
		return m.RenderFunc(ctx, data, password)
	}
	return []pdfdoc.PageImage{{Page: 1, MIMEType: "image/png", Data: data}}, nil
}

// MockExtractor is a mock implementation of TransactionExtractor for testing.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, pages []pdfdoc.PageImage, sourceFile string) ([]domain.Transaction, error)
}

func (m *MockExtractor) ExtractTransactions(ctx context.Context, pages []pdfdoc.PageImage, sourceFile string) ([]domain.Transaction, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, pages, sourceFile)
	}
	return nil, nil
}

// MockAdvisor is a mock implementation of Advisor for testing.
type MockAdvisor struct {
	InsightsFunc func(ctx context.Context, txs []domain.Transaction) (*domain.FinancialInsights, error)
	GoalPlanFunc func(ctx context.Context, txs []domain.Transaction, goal domain.GoalInput) (*domain.GoalPlan, error)

	mu            sync.Mutex
	InsightsCalls int
}

func (m *MockAdvisor) Insights(ctx context.Context, txs []domain.Transaction) (*domain.FinancialInsights, error) {
	m.mu.Lock()
	m.InsightsCalls++
	m.mu.Unlock()
	if m.InsightsFunc != nil {
		return m.InsightsFunc(ctx, txs)
	}
	return &domain.FinancialInsights{Summary: domain.Summarize(txs)}, nil
}

func (m *MockAdvisor) GoalPlan(ctx context.Context, txs []domain.Transaction, goal domain.GoalInput) (*domain.GoalPlan, error) {
	if m.GoalPlanFunc != nil {
		return m.GoalPlanFunc(ctx, txs, goal)
	}
	return &domain.GoalPlan{GoalName: goal.GoalName}, nil
}

// MockUsageGate is a mock implementation of UsageGate for testing.
type MockUsageGate struct {
	CanConvertFunc       func(ctx context.Context, userID string) (bool, error)
	RecordConversionFunc func(ctx context.Context, rec usage.Record) error

	mu      sync.Mutex
	Records []usage.Record
}

func (m *MockUsageGate) CanConvert(ctx context.Context, userID string) (bool, error) {
	if m.CanConvertFunc != nil {
		return m.CanConvertFunc(ctx, userID)
	}
	return true, nil
}

func (m *MockUsageGate) RecordConversion(ctx context.Context, rec usage.Record) error {
	m.mu.Lock()
	m.Records = append(m.Records, rec)
	m.mu.Unlock()
	if m.RecordConversionFunc != nil {
		return m.RecordConversionFunc(ctx, rec)
	}
	return nil
}

func amount(v float64) *float64 { return &v }
