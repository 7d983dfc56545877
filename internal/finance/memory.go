package finance

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// similarWindow bounds how far apart two expenses can be and still count as
// possible duplicates.
const similarWindow = 3 * 24 * time.Hour

// MemoryBackend is an in-memory Backend used by tests and local development.
type MemoryBackend struct {
	mu       sync.RWMutex
	expenses map[string][]Expense        // userID → expenses
	budgets  map[string]map[string]int64 // userID → category → limit
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		expenses: make(map[string][]Expense),
		budgets:  make(map[string]map[string]int64),
	}
}

// Seed inserts expenses for a user without similarity checks. Test helper.
func (b *MemoryBackend) Seed(userID string, expenses ...Expense) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range expenses {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		b.expenses[userID] = append(b.expenses[userID], e)
	}
}

func (b *MemoryBackend) ListExpenses(_ context.Context, userID string, f ExpenseFilter, offset, limit int) ([]Expense, int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Expense
	for _, e := range b.expenses[userID] {
		if matches(e, f) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	page := make([]Expense, end-offset)
	copy(page, matched[offset:end])
	return page, total, nil
}

func matches(e Expense, f ExpenseFilter) bool {
	if f.Category != "" && !strings.EqualFold(e.Category, f.Category) {
		return false
	}
	if f.Query != "" && !strings.Contains(strings.ToLower(e.Description), strings.ToLower(f.Query)) {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	return true
}

func (b *MemoryBackend) AddExpense(_ context.Context, userID string, e Expense) (Expense, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Date.IsZero() {
		e.Date = time.Now()
	}
	b.expenses[userID] = append(b.expenses[userID], e)
	return e, nil
}

func (b *MemoryBackend) DeleteExpenses(_ context.Context, userID string, ids []string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	kept := b.expenses[userID][:0]
	deleted := 0
	for _, e := range b.expenses[userID] {
		if idSet[e.ID] {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	b.expenses[userID] = kept
	return deleted, nil
}

func (b *MemoryBackend) FindSimilar(_ context.Context, userID string, e Expense) ([]Expense, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var similar []Expense
	for _, existing := range b.expenses[userID] {
		if !strings.EqualFold(existing.Description, e.Description) {
			continue
		}
		if existing.AmountCents != e.AmountCents {
			continue
		}
		if !e.Date.IsZero() {
			gap := existing.Date.Sub(e.Date)
			if gap < 0 {
				gap = -gap
			}
			if gap > similarWindow {
				continue
			}
		}
		similar = append(similar, existing)
	}
	return similar, nil
}

func (b *MemoryBackend) SetBudget(_ context.Context, userID, category string, limitCents int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.budgets[userID] == nil {
		b.budgets[userID] = make(map[string]int64)
	}
	b.budgets[userID][category] = limitCents
	return nil
}

func (b *MemoryBackend) BudgetSummary(_ context.Context, userID, month string) (BudgetSummary, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	spent := make(map[string]int64)
	var total int64
	for _, e := range b.expenses[userID] {
		if e.Date.Format("2006-01") != month {
			continue
		}
		spent[e.Category] += e.AmountCents
		total += e.AmountCents
	}

	summary := BudgetSummary{Month: month, TotalCents: total}
	for cat, amount := range spent {
		summary.Categories = append(summary.Categories, CategorySpend{
			Category:   cat,
			SpentCents: amount,
			LimitCents: b.budgets[userID][cat],
		})
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		return summary.Categories[i].Category < summary.Categories[j].Category
	})
	return summary, nil
}

func (b *MemoryBackend) SpendingInsights(_ context.Context, userID string, months int) (Insights, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if months <= 0 {
		months = 3
	}
	cutoff := time.Now().AddDate(0, -months, 0)

	byCategory := make(map[string]int64)
	var total int64
	for _, e := range b.expenses[userID] {
		if e.Date.Before(cutoff) {
			continue
		}
		byCategory[e.Category] += e.AmountCents
		total += e.AmountCents
	}

	insights := Insights{Months: months, AvgMonthly: total / int64(months), Trend: "flat"}
	for cat, amount := range byCategory {
		insights.TopCategories = append(insights.TopCategories, CategorySpend{Category: cat, SpentCents: amount})
	}
	sort.Slice(insights.TopCategories, func(i, j int) bool {
		return insights.TopCategories[i].SpentCents > insights.TopCategories[j].SpentCents
	})
	if len(insights.TopCategories) > 5 {
		insights.TopCategories = insights.TopCategories[:5]
	}
	return insights, nil
}
