package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pennywise/pennywise/internal/domain"
	"github.com/pennywise/pennywise/internal/finance"
)

type addExpenseInput struct {
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	AmountCents int64  `json:"amountCents"`
	Date        string `json:"date,omitempty"`
	Confirmed   bool   `json:"confirmed,omitempty"`
}

func addExpenseTool(backend finance.Backend, userID string) Spec {
	return Spec{
		Name:        "add_expense",
		Description: "Record a new expense. The first call proposes the expense for confirmation (including possible-duplicate warnings); call again with confirmed=true to commit.",
		InputSchema: `{"type":"object","required":["description","amountCents"],"properties":{
			"description":{"type":"string"},
			"category":{"type":"string"},
			"amountCents":{"type":"integer"},
			"date":{"type":"string","description":"YYYY-MM-DD, defaults to today"},
			"confirmed":{"type":"boolean"}}}`,
		Capability: CapabilityMutate,
		Execute: func(ctx context.Context, input json.RawMessage) (domain.ToolOutput, error) {
			var in addExpenseInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("invalid input: %w", err)
			}
			if in.Description == "" || in.AmountCents <= 0 {
				return nil, fmt.Errorf("description and a positive amountCents are required")
			}

			expense := finance.Expense{
				Description: in.Description,
				Category:    in.Category,
				AmountCents: in.AmountCents,
			}
			if in.Date != "" {
				var err error
				if expense.Date, err = parseDay(in.Date); err != nil {
					return nil, fmt.Errorf("invalid date: %w", err)
				}
			}

			return runGated(ctx, "add_expense", in.Confirmed,
				func(ctx context.Context) (proposal, error) {
					similar, err := backend.FindSimilar(ctx, userID, expense)
					if err != nil {
						return proposal{}, fmt.Errorf("duplicate check: %w", err)
					}
					p := proposal{
						summary: fmt.Sprintf("Add expense %q for %s", in.Description, formatCents(in.AmountCents)),
						details: expense,
					}
					for _, s := range similar {
						p.warnings = append(p.warnings, fmt.Sprintf(
							"possible duplicate of %q (%s on %s)",
							s.Description, formatCents(s.AmountCents), s.Date.Format("2006-01-02")))
					}
					return p, nil
				},
				func(ctx context.Context) (string, error) {
					added, err := backend.AddExpense(ctx, userID, expense)
					if err != nil {
						return "", fmt.Errorf("adding expense: %w", err)
					}
					return fmt.Sprintf("Recorded expense %q (%s)", added.Description, formatCents(added.AmountCents)), nil
				},
			)
		},
	}
}

type deleteExpensesInput struct {
	Query     string `json:"query"`
	Confirmed bool   `json:"confirmed,omitempty"`
}

func deleteExpensesTool(backend finance.Backend, userID string) Spec {
	return Spec{
		Name:        "delete_expenses",
		Description: "Delete expenses whose description matches the query. The first call enumerates the affected expenses for confirmation; call again with confirmed=true to commit.",
		InputSchema: `{"type":"object","required":["query"],"properties":{
			"query":{"type":"string","description":"substring match on description"},
			"confirmed":{"type":"boolean"}}}`,
		Capability: CapabilityMutate,
		Execute: func(ctx context.Context, input json.RawMessage) (domain.ToolOutput, error) {
			var in deleteExpensesInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("invalid input: %w", err)
			}
			if in.Query == "" {
				return nil, fmt.Errorf("query is required")
			}

			match := func(ctx context.Context) ([]finance.Expense, error) {
				matched, _, err := backend.ListExpenses(ctx, userID, finance.ExpenseFilter{Query: in.Query}, 0, 0)
				return matched, err
			}

			return runGated(ctx, "delete_expenses", in.Confirmed,
				func(ctx context.Context) (proposal, error) {
					matched, err := match(ctx)
					if err != nil {
						return proposal{}, fmt.Errorf("matching expenses: %w", err)
					}
					if len(matched) == 0 {
						return proposal{}, fmt.Errorf("no expenses match %q", in.Query)
					}
					return proposal{
						summary: fmt.Sprintf("Delete %d expense(s) matching %q", len(matched), in.Query),
						details: matched,
					}, nil
				},
				func(ctx context.Context) (string, error) {
					matched, err := match(ctx)
					if err != nil {
						return "", fmt.Errorf("matching expenses: %w", err)
					}
					ids := make([]string, len(matched))
					for i, e := range matched {
						ids[i] = e.ID
					}
					n, err := backend.DeleteExpenses(ctx, userID, ids)
					if err != nil {
						return "", fmt.Errorf("deleting expenses: %w", err)
					}
					return fmt.Sprintf("Deleted %d expense(s) matching %q", n, in.Query), nil
				},
			)
		},
	}
}

type setBudgetInput struct {
	Category   string `json:"category"`
	LimitCents int64  `json:"limitCents"`
	Confirmed  bool   `json:"confirmed,omitempty"`
}

func setBudgetTool(backend finance.Backend, userID string) Spec {
	return Spec{
		Name:        "set_budget",
		Description: "Set a category's monthly budget limit. The first call proposes the change for confirmation; call again with confirmed=true to commit.",
		InputSchema: `{"type":"object","required":["category","limitCents"],"properties":{
			"category":{"type":"string"},
			"limitCents":{"type":"integer"},
			"confirmed":{"type":"boolean"}}}`,
		Capability: CapabilityMutate,
		Execute: func(ctx context.Context, input json.RawMessage) (domain.ToolOutput, error) {
			var in setBudgetInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("invalid input: %w", err)
			}
			if in.Category == "" || in.LimitCents < 0 {
				return nil, fmt.Errorf("category and a non-negative limitCents are required")
			}

			return runGated(ctx, "set_budget", in.Confirmed,
				func(ctx context.Context) (proposal, error) {
					return proposal{
						summary: fmt.Sprintf("Set %s budget to %s per month", in.Category, formatCents(in.LimitCents)),
						details: map[string]any{"category": in.Category, "limitCents": in.LimitCents},
					}, nil
				},
				func(ctx context.Context) (string, error) {
					if err := backend.SetBudget(ctx, userID, in.Category, in.LimitCents); err != nil {
						return "", fmt.Errorf("setting budget: %w", err)
					}
					return fmt.Sprintf("Budget for %s set to %s per month", in.Category, formatCents(in.LimitCents)), nil
				},
			)
		},
	}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
