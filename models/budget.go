package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExpenseCategory string

const (
	ExpenseVenue          ExpenseCategory = "venue"
	ExpenseCatering       ExpenseCategory = "catering"
	ExpenseEquipment      ExpenseCategory = "equipment"
	ExpenseMarketing      ExpenseCategory = "marketing"
	ExpenseTransportation ExpenseCategory = "transportation"
	ExpenseDecorations    ExpenseCategory = "decorations"
	ExpenseSpeakers       ExpenseCategory = "speakers"
	ExpenseOther          ExpenseCategory = "other"
)

func (c ExpenseCategory) Valid() bool {
	switch c {
	case ExpenseVenue, ExpenseCatering, ExpenseEquipment, ExpenseMarketing,
		ExpenseTransportation, ExpenseDecorations, ExpenseSpeakers, ExpenseOther:
		return true
	}
	return false
}

type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
	ExpenseRejected ExpenseStatus = "rejected"
)

type Budget struct {
	Total      decimal.Decimal  `json:"total"`
	Currency   string           `json:"currency"`
	Categories []BudgetCategory `json:"categories"`
}

// BudgetCategory.Spent grows when an expense is recorded, not when it is approved.
type BudgetCategory struct {
	Category  ExpenseCategory `json:"category"`
	Allocated decimal.Decimal `json:"allocated"`
	Spent     decimal.Decimal `json:"spent"`
}

type Expense struct {
	ID          string          `json:"id"`
	Category    ExpenseCategory `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Status      ExpenseStatus   `json:"status"`
	AddedBy     string          `json:"added_by"`
	AddedAt     time.Time       `json:"added_at"`
	ApprovedBy  string          `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty"`
	RejectedBy  string          `json:"rejected_by,omitempty"`
	RejectedAt  *time.Time      `json:"rejected_at,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

type BudgetSummary struct {
	Currency     string            `json:"currency"`
	TotalBudget  decimal.Decimal   `json:"total_budget"`
	TotalSpent   decimal.Decimal   `json:"total_spent"`   // approved expenses only
	TotalPending decimal.Decimal   `json:"total_pending"` // pending expenses only
	Remaining    decimal.Decimal   `json:"remaining"`
	Categories   []CategorySummary `json:"categories"`
}

type CategorySummary struct {
	Category  ExpenseCategory `json:"category"`
	Allocated decimal.Decimal `json:"allocated"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
}

func (b Budget) FindCategory(c ExpenseCategory) int {
	for i, bc := range b.Categories {
		if bc.Category == c {
			return i
		}
	}
	return -1
}

func (e Event) FindExpense(id string) int {
	for i, x := range e.Expenses {
		if x.ID == id {
			return i
		}
	}
	return -1
}

// Summarize folds the ledger. Ledger-wide totals count approved expenses;
// per-category remaining uses the eagerly updated Spent.
func Summarize(budget Budget, expenses []Expense) BudgetSummary {
	summary := BudgetSummary{
		Currency:     budget.Currency,
		TotalBudget:  budget.Total,
		TotalSpent:   decimal.Zero,
		TotalPending: decimal.Zero,
		Categories:   make([]CategorySummary, 0, len(budget.Categories)),
	}
	for _, x := range expenses {
		switch x.Status {
		case ExpenseApproved:
			summary.TotalSpent = summary.TotalSpent.Add(x.Amount)
		case ExpensePending:
			summary.TotalPending = summary.TotalPending.Add(x.Amount)
		}
	}
	summary.Remaining = budget.Total.Sub(summary.TotalSpent)
	for _, c := range budget.Categories {
		summary.Categories = append(summary.Categories, CategorySummary{
			Category:  c.Category,
			Allocated: c.Allocated,
			Spent:     c.Spent,
			Remaining: c.Allocated.Sub(c.Spent),
		})
	}
	return summary
}

func (b Budget) clone() Budget {
	b.Categories = append([]BudgetCategory(nil), b.Categories...)
	return b
}

func (x Expense) clone() Expense {
	x.ApprovedAt = cloneTime(x.ApprovedAt)
	x.RejectedAt = cloneTime(x.RejectedAt)
	return x
}
