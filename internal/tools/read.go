package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pennywise/pennywise/internal/domain"
	"github.com/pennywise/pennywise/internal/finance"
)

type listExpensesInput struct {
	Category string `json:"category,omitempty"`
	Query    string `json:"query,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
}

func (in listExpensesInput) filter() (finance.ExpenseFilter, error) {
	f := finance.ExpenseFilter{Category: in.Category, Query: in.Query}
	var err error
	if in.From != "" {
		if f.From, err = parseDay(in.From); err != nil {
			return f, fmt.Errorf("invalid 'from' date: %w", err)
		}
	}
	if in.To != "" {
		if f.To, err = parseDay(in.To); err != nil {
			return f, fmt.Errorf("invalid 'to' date: %w", err)
		}
	}
	return f, nil
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func listExpensesTool(backend finance.Backend, userID string) Spec {
	return Spec{
		Name:        "list_expenses",
		Description: "List the user's expenses, newest first. Supports filtering by category, description substring and date range, and paginated continuation via the cursor.",
		InputSchema: `{"type":"object","properties":{
			"category":{"type":"string"},
			"query":{"type":"string","description":"substring match on description"},
			"from":{"type":"string","description":"YYYY-MM-DD"},
			"to":{"type":"string","description":"YYYY-MM-DD"},
			"pageSize":{"type":"integer"},
			"cursor":{"type":"string","description":"continuation token from a previous page"}}}`,
		Capability: CapabilityRead,
		Execute: func(ctx context.Context, input json.RawMessage) (domain.ToolOutput, error) {
			var in listExpensesInput
			if len(input) > 0 {
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, fmt.Errorf("invalid input: %w", err)
				}
			}

			offset := 0
			pageSize := in.PageSize
			if pageSize <= 0 {
				pageSize = defaultPageSize
			}
			if in.Cursor != "" {
				c, err := decodeCursor(in.Cursor)
				if err != nil {
					return nil, err
				}
				offset, pageSize = c.Offset, c.PageSize
			}

			f, err := in.filter()
			if err != nil {
				return nil, err
			}

			page, total, err := backend.ListExpenses(ctx, userID, f, offset, pageSize)
			if err != nil {
				return nil, fmt.Errorf("listing expenses: %w", err)
			}

			items, err := json.Marshal(page)
			if err != nil {
				return nil, err
			}

			out := domain.ListOutput{Items: items, Count: total}
			if offset+len(page) < total {
				out.NextCursor = encodeCursor(cursor{Offset: offset + len(page), PageSize: pageSize})
				// Echo the literal arguments so "load more" reuses them
				// unchanged except for the cursor.
				in.Cursor = ""
				out.Args, _ = json.Marshal(in)
			}
			return out, nil
		},
	}
}

type budgetSummaryInput struct {
	Month string `json:"month,omitempty"`
}

func budgetSummaryTool(backend finance.Backend, userID string) Spec {
	return Spec{
		Name:        "get_budget_summary",
		Description: "Summarize a month of spending by category against configured budget limits. Month defaults to the current month.",
		InputSchema: `{"type":"object","properties":{"month":{"type":"string","description":"YYYY-MM"}}}`,
		Capability:  CapabilityRead,
		Execute: func(ctx context.Context, input json.RawMessage) (domain.ToolOutput, error) {
			var in budgetSummaryInput
			if len(input) > 0 {
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, fmt.Errorf("invalid input: %w", err)
				}
			}
			if in.Month == "" {
				in.Month = time.Now().Format("2006-01")
			}

			summary, err := backend.BudgetSummary(ctx, userID, in.Month)
			if err != nil {
				return nil, fmt.Errorf("budget summary: %w", err)
			}
			data, err := json.Marshal(summary)
			if err != nil {
				return nil, err
			}
			return domain.SuccessOutput{Data: data}, nil
		},
	}
}
