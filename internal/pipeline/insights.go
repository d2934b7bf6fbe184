package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/dvloznov/statement-converter/internal/logger"
)

// Analyst produces financial insights and goal plans from merged transactions.
type Analyst struct {
	model ModelClient
}

// NewAnalyst creates an Analyst backed by model.
func NewAnalyst(model ModelClient) *Analyst {
	return &Analyst{model: model}
}

// Insights returns a summary, insights and a suggested goal for txs.
func (a *Analyst) Insights(ctx context.Context, txs []domain.Transaction) (*domain.FinancialInsights, error) {
	log := logger.FromContext(ctx)

	out, err := a.insights(ctx, txs)
	if err != nil {
		log.Error().Err(err).Int("transactions", len(txs)).Msg("Error generating financial insights with model")
		return nil, &UserError{Msg: MsgInsightsFailed, Err: err}
	}

	// The model's arithmetic is not trusted; totals always come from the rows.
	local := domain.Summarize(txs)
	if !summariesAgree(out.Summary, local) {
		log.Warn().
			Float64("model_net_flow", out.Summary.NetFlow).
			Float64("local_net_flow", local.NetFlow).
			Msg("Model summary disagrees with transactions, using local totals")
	}
	out.Summary = local
	return out, nil
}

// summariesAgree compares two summaries to the cent.
func summariesAgree(a, b domain.FinancialSummary) bool {
	const cent = 0.005
	return math.Abs(a.TotalIncome-b.TotalIncome) < cent &&
		math.Abs(a.TotalSpending-b.TotalSpending) < cent &&
		math.Abs(a.NetFlow-b.NetFlow) < cent
}

func (a *Analyst) insights(ctx context.Context, txs []domain.Transaction) (*domain.FinancialInsights, error) {
	prompt, err := buildInsightsPrompt(txs)
	if err != nil {
		return nil, err
	}
	raw, err := a.model.GenerateJSON(ctx, ModelRequest{Kind: KindInsights, Prompt: prompt, Schema: insightsSchema})
	if err != nil {
		return nil, err
	}
	return parseInsights(raw)
}

// GoalPlan returns a savings plan for goal based on txs.
func (a *Analyst) GoalPlan(ctx context.Context, txs []domain.Transaction, goal domain.GoalInput) (*domain.GoalPlan, error) {
	log := logger.FromContext(ctx)

	if err := goal.Validate(); err != nil {
		return nil, err
	}

	plan, err := a.goalPlan(ctx, txs, goal)
	if err != nil {
		log.Error().Err(err).Str("goal", goal.GoalName).Msg("Error generating goal plan with model")
		return nil, &UserError{Msg: MsgGoalPlanFailed, Err: err}
	}
	return plan, nil
}

func (a *Analyst) goalPlan(ctx context.Context, txs []domain.Transaction, goal domain.GoalInput) (*domain.GoalPlan, error) {
	prompt, err := buildGoalPrompt(txs, goal)
	if err != nil {
		return nil, err
	}
	raw, err := a.model.GenerateJSON(ctx, ModelRequest{Kind: KindGoalPlan, Prompt: prompt, Schema: goalPlanSchema})
	if err != nil {
		return nil, err
	}
	return parseGoalPlan(raw)
}

// Wire shapes with pointer fields so that missing required fields are
// detected instead of silently decoding to zero values.
type insightsWire struct {
	Summary *struct {
		TotalIncome   *float64 `json:"totalIncome"`
		TotalSpending *float64 `json:"totalSpending"`
		NetFlow       *float64 `json:"netFlow"`
	} `json:"summary"`
	Insights []string `json:"insights"`
	Goal     *struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
	} `json:"goal"`
}

func parseInsights(raw string) (*domain.FinancialInsights, error) {
	var w insightsWire
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &w); err != nil {
		return nil, fmt.Errorf("parseInsights: unmarshal JSON: %w", err)
	}

	switch {
	case w.Summary == nil || w.Summary.TotalIncome == nil || w.Summary.TotalSpending == nil || w.Summary.NetFlow == nil:
		return nil, errors.New("parseInsights: incomplete summary")
	case w.Insights == nil:
		return nil, errors.New("parseInsights: missing insights")
	case w.Goal == nil || w.Goal.Title == nil || w.Goal.Description == nil:
		return nil, errors.New("parseInsights: incomplete goal")
	}

	return &domain.FinancialInsights{
		Summary: domain.FinancialSummary{
			TotalIncome:   *w.Summary.TotalIncome,
			TotalSpending: *w.Summary.TotalSpending,
			NetFlow:       *w.Summary.NetFlow,
		},
		Insights: w.Insights,
		Goal: domain.FinancialGoal{
			Title:       *w.Goal.Title,
			Description: *w.Goal.Description,
		},
	}, nil
}

type goalPlanWire struct {
	GoalName             *string  `json:"goalName"`
	MonthlySavingsTarget *float64 `json:"monthlySavingsTarget"`
	Suggestions          []string `json:"suggestions"`
	Plan                 []struct {
		Step        *int    `json:"step"`
		Action      *string `json:"action"`
		Description *string `json:"description"`
	} `json:"plan"`
}

func parseGoalPlan(raw string) (*domain.GoalPlan, error) {
	var w goalPlanWire
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &w); err != nil {
		return nil, fmt.Errorf("parseGoalPlan: unmarshal JSON: %w", err)
	}

	switch {
	case w.GoalName == nil:
		return nil, errors.New("parseGoalPlan: missing goalName")
	case w.MonthlySavingsTarget == nil:
		return nil, errors.New("parseGoalPlan: missing monthlySavingsTarget")
	case w.Suggestions == nil:
		return nil, errors.New("parseGoalPlan: missing suggestions")
	case w.Plan == nil:
		return nil, errors.New("parseGoalPlan: missing plan")
	}

	plan := &domain.GoalPlan{
		GoalName:             *w.GoalName,
		MonthlySavingsTarget: *w.MonthlySavingsTarget,
		Suggestions:          w.Suggestions,
		Plan:                 make([]domain.PlanStep, 0, len(w.Plan)),
	}
	for i, s := range w.Plan {
		if s.Step == nil || s.Action == nil || s.Description == nil {
			return nil, fmt.Errorf("parseGoalPlan: plan step %d is incomplete", i)
		}
		plan.Plan = append(plan.Plan, domain.PlanStep{Step: *s.Step, Action: *s.Action, Description: *s.Description})
	}
	return plan, nil
}
