// Package finance defines the contract with the external finance backend.
// The engine only depends on this interface; the data model behind it is
// owned elsewhere.
package finance

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced record does not exist in the
// caller's scope.
var ErrNotFound = errors.New("record not found")

// Expense is one spending record.
type Expense struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	AmountCents int64     `json:"amountCents"`
	Date        time.Time `json:"date"`
}

// ExpenseFilter narrows expense queries. Zero values mean "no constraint".
type ExpenseFilter struct {
	Category string    `json:"category,omitempty"`
	Query    string    `json:"query,omitempty"` // substring match on description
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`
}

// CategorySpend is one category line of a budget summary.
type CategorySpend struct {
	Category   string `json:"category"`
	SpentCents int64  `json:"spentCents"`
	LimitCents int64  `json:"limitCents,omitempty"`
}

// BudgetSummary aggregates a month of spending against configured limits.
type BudgetSummary struct {
	Month      string          `json:"month"` // "2026-08"
	Categories []CategorySpend `json:"categories"`
	TotalCents int64           `json:"totalCents"`
}

// Insights is the premium analytics payload.
type Insights struct {
	Months        int             `json:"months"`
	AvgMonthly    int64           `json:"avgMonthlyCents"`
	TopCategories []CategorySpend `json:"topCategories"`
	Trend         string          `json:"trend"` // "up" | "down" | "flat"
}

// Backend is the finance data service the tools call into. Every operation
// is scoped to the given userID; implementations must never return another
// user's records.
type Backend interface {
	// ListExpenses returns one page of expenses matching the filter, newest
	// first, plus the total match count.
	ListExpenses(ctx context.Context, userID string, f ExpenseFilter, offset, limit int) ([]Expense, int, error)

	// AddExpense stores a new expense and returns it with its assigned id.
	AddExpense(ctx context.Context, userID string, e Expense) (Expense, error)

	// DeleteExpenses removes the identified expenses and reports how many
	// were actually deleted.
	DeleteExpenses(ctx context.Context, userID string, ids []string) (int, error)

	// FindSimilar returns existing expenses that look like duplicates of e
	// (same description, close amount, nearby date).
	FindSimilar(ctx context.Context, userID string, e Expense) ([]Expense, error)

	// SetBudget configures a category's monthly limit.
	SetBudget(ctx context.Context, userID, category string, limitCents int64) error

	// BudgetSummary aggregates the given month ("YYYY-MM").
	BudgetSummary(ctx context.Context, userID, month string) (BudgetSummary, error)

	// SpendingInsights computes premium analytics over the trailing months.
	SpendingInsights(ctx context.Context, userID string, months int) (Insights, error)
}
