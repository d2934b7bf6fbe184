package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// FinancialSummary holds the headline cash-flow figures for a set of transactions.
type FinancialSummary struct {
	TotalIncome   float64 `json:"totalIncome"`
	TotalSpending float64 `json:"totalSpending"`
	NetFlow       float64 `json:"netFlow"`
}

// FinancialGoal is a single savings goal suggested by the model.
type FinancialGoal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FinancialInsights is the model-produced summary for a conversion.
// It is derived data and never authoritative.
type FinancialInsights struct {
	Summary  FinancialSummary `json:"summary"`
	Insights []string         `json:"insights"`
	Goal     FinancialGoal    `json:"goal"`
}

// GoalInput is what the user asks the goal planner for.
type GoalInput struct {
	GoalName     string  `json:"goalName"`
	TargetAmount float64 `json:"targetAmount"`
	Years        int     `json:"years"`
}

// ErrInvalidGoal is returned by GoalInput.Validate.
var ErrInvalidGoal = errors.New("invalid goal")

// Validate checks the goal before it is sent to the planner.
func (g GoalInput) Validate() error {
	switch {
	case strings.TrimSpace(g.GoalName) == "":
		return errors.Join(ErrInvalidGoal, errors.New("goal name is required"))
	case g.TargetAmount <= 0:
		return errors.Join(ErrInvalidGoal, errors.New("target amount must be positive"))
	case g.Years <= 0:
		return errors.Join(ErrInvalidGoal, errors.New("years must be positive"))
	}
	return nil
}

// PlanStep is one ordered step of a goal plan.
type PlanStep struct {
	Step        int    `json:"step"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// GoalPlan is the model-produced savings plan for a GoalInput.
type GoalPlan struct {
	GoalName             string     `json:"goalName"`
	MonthlySavingsTarget float64    `json:"monthlySavingsTarget"`
	Suggestions          []string   `json:"suggestions"`
	Plan                 []PlanStep `json:"plan"`
}

// Summarize computes income, spending and net flow locally.
// Sums are done in decimal so that cents do not drift across many rows.
func Summarize(txs []Transaction) FinancialSummary {
	income := decimal.Zero
	spending := decimal.Zero
	for _, tx := range txs {
		if tx.Credit != nil {
			income = income.Add(decimal.NewFromFloat(*tx.Credit))
		}
		if tx.Debit != nil {
			spending = spending.Add(decimal.NewFromFloat(*tx.Debit))
		}
	}

	return FinancialSummary{
		TotalIncome:   income.InexactFloat64(),
		TotalSpending: spending.InexactFloat64(),
		NetFlow:       income.Sub(spending).InexactFloat64(),
	}
}
