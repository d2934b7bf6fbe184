package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dvloznov/statement-converter/internal/domain"
)

const extractionPrompt = `
Act as an expert financial data analyst. Your task is to extract transaction data from the provided images of a bank statement.
The data might be messy. Identify the columns for date, description, withdrawals/debits, deposits/credits, and the running balance.
Process all transactions listed and return them in the specified JSON format.
- 'debit' should be a positive number for money going out.
- 'credit' should be a positive number for money coming in.
- If a transaction is a debit, 'credit' should be null, and vice-versa.
- The balance should be the running balance after that specific transaction.
- Dates should be normalized to 'YYYY-MM-DD' format if possible, otherwise use the format from the text.
- Clean up the description text to be human-readable.
`

const insightsPrompt = `
You are a helpful and insightful financial assistant. Based on the following JSON array of bank transactions, provide a concise financial summary, 3-4 actionable insights, and a single, achievable savings goal.
- The summary should calculate total income (sum of credits), total spending (sum of debits), and the net cash flow (income - spending).
- The insights should highlight spending patterns, identify potential recurring subscriptions, or point out unusually large transactions. Be specific and helpful.
- The goal should be specific and based on the transaction data (e.g., 'Reduce spending on dining out by 15% this month.').
- Respond strictly in the requested JSON format.

Transactions:
`

const goalPlannerPrompt = `
You are an expert financial advisor AI. Your task is to create a personalized, actionable savings plan based on a user's financial goal and their transaction history.

**User's Goal:**
- Goal: {goalName}
- Target Amount: {targetAmount}
- Timeframe: {years} years

**User's Transaction History (JSON):**
{transactions}

**Your Task:**
1.  **Calculate Monthly Savings Target:** Determine the amount the user needs to save each month to reach their goal.
2.  **Analyze Spending:** Review the transaction history to identify top spending categories and areas for potential cutbacks.
3.  **Provide Actionable Suggestions:** Give 3-4 specific, data-driven suggestions for how the user can reduce spending to meet their monthly target (e.g., "You spent $250 on restaurants last month. Reducing this by 20% would save you $50.").
4.  **Create a Step-by-Step Plan:** Outline a simple, 3-step plan to help the user get started and stay on track.
5.  **Respond in JSON:** You must respond in the specified JSON format. Ensure all fields are populated with helpful, encouraging, and clear advice. The tone should be positive and empowering.
`

// promptTransaction is a transaction as sent to the model: the source file is
// left out to keep the payload small.
type promptTransaction struct {
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Debit       *float64 `json:"debit"`
	Credit      *float64 `json:"credit"`
	Balance     float64  `json:"balance"`
}

// transactionsJSON renders txs as 2-space indented JSON without source files.
func transactionsJSON(txs []domain.Transaction) (string, error) {
	out := make([]promptTransaction, len(txs))
	for i, tx := range txs {
		out[i] = promptTransaction{
			Date:        tx.Date,
			Description: tx.Description,
			Debit:       tx.Debit,
			Credit:      tx.Credit,
			Balance:     tx.Balance,
		}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("transactionsJSON: %w", err)
	}
	return string(b), nil
}

// buildInsightsPrompt appends the transactions to the insights instructions.
func buildInsightsPrompt(txs []domain.Transaction) (string, error) {
	payload, err := transactionsJSON(txs)
	if err != nil {
		return "", err
	}
	return insightsPrompt + "\n" + payload, nil
}

// buildGoalPrompt fills the goal planner placeholders. Each placeholder is
// replaced once, the transactions last so their text is never rescanned.
func buildGoalPrompt(txs []domain.Transaction, goal domain.GoalInput) (string, error) {
	payload, err := transactionsJSON(txs)
	if err != nil {
		return "", err
	}
	p := goalPlannerPrompt
	p = strings.Replace(p, "{goalName}", goal.GoalName, 1)
	p = strings.Replace(p, "{targetAmount}", strconv.FormatFloat(goal.TargetAmount, 'f', -1, 64), 1)
	p = strings.Replace(p, "{years}", strconv.Itoa(goal.Years), 1)
	p = strings.Replace(p, "{transactions}", payload, 1)
	return p, nil
}
