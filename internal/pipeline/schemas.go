package pipeline

import "google.golang.org/genai"

// transactionSchema constrains extraction output to an array of transactions.
var transactionSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"date": {
				Type:        genai.TypeString,
				Description: "Transaction date (YYYY-MM-DD)",
			},
			"description": {
				Type:        genai.TypeString,
				Description: "A clean description of the transaction.",
			},
			"debit": {
				Type:        genai.TypeNumber,
				Description: "The amount debited (withdrawal). Null if credit.",
				Nullable:    genai.Ptr(true),
			},
			"credit": {
				Type:        genai.TypeNumber,
				Description: "The amount credited (deposit). Null if debit.",
				Nullable:    genai.Ptr(true),
			},
			"balance": {
				Type:        genai.TypeNumber,
				Description: "The running balance after the transaction.",
			},
		},
		PropertyOrdering: []string{"date", "description", "debit", "credit", "balance"},
		Required:         []string{"date", "description", "balance"},
	},
}

var insightsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"totalIncome":   {Type: genai.TypeNumber},
				"totalSpending": {Type: genai.TypeNumber},
				"netFlow":       {Type: genai.TypeNumber},
			},
			Required: []string{"totalIncome", "totalSpending", "netFlow"},
		},
		"insights": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"goal": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":       {Type: genai.TypeString},
				"description": {Type: genai.TypeString},
			},
			Required: []string{"title", "description"},
		},
	},
	Required: []string{"summary", "insights", "goal"},
}

var goalPlanSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"goalName":             {Type: genai.TypeString},
		"monthlySavingsTarget": {Type: genai.TypeNumber},
		"suggestions": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"plan": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"step":        {Type: genai.TypeInteger},
					"action":      {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
				},
				Required: []string{"step", "action", "description"},
			},
		},
	},
	Required: []string{"goalName", "monthlySavingsTarget", "suggestions", "plan"},
}
