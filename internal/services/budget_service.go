package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"campus-events/internal/notify"
	"campus-events/internal/status"
	"campus-events/models"
)

type SetBudgetRequest struct {
	Total      decimal.Decimal         `json:"total"`
	Currency   string                  `json:"currency"`
	Categories []models.BudgetCategory `json:"categories"`
}

type AddExpenseRequest struct {
	Category    models.ExpenseCategory `json:"category"`
	Description string                 `json:"description"`
	Amount      decimal.Decimal        `json:"amount"`
}

const defaultCurrency = "USD"

type BudgetService struct {
	base
}

func NewBudgetService(deps Deps) *BudgetService {
	return &BudgetService{base: newBase(deps)}
}

// SetBudget replaces the event's budget. Every category starts with nothing
// spent.
func (s *BudgetService) SetBudget(ctx context.Context, eventID string, req SetBudgetRequest) (budget models.Budget, err error) {
	ctx, done := s.begin(ctx, "set_budget", attribute.String("event_id", eventID))
	defer done(&err)

	if err := validateAmount("budget total", req.Total); err != nil {
		return models.Budget{}, err
	}
	seen := make(map[models.ExpenseCategory]bool, len(req.Categories))
	categories := make([]models.BudgetCategory, 0, len(req.Categories))
	for _, c := range req.Categories {
		if !c.Category.Valid() {
			return models.Budget{}, status.Validation("unknown budget category %q", c.Category)
		}
		if seen[c.Category] {
			return models.Budget{}, status.Validation("budget category %q listed twice", c.Category)
		}
		seen[c.Category] = true
		if err := validateAmount("allocation", c.Allocated); err != nil {
			return models.Budget{}, err
		}
		categories = append(categories, models.BudgetCategory{Category: c.Category, Allocated: c.Allocated, Spent: decimal.Zero})
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	user, err := s.caller(ctx)
	if err != nil {
		return models.Budget{}, err
	}
	ev, err := s.Store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		if err := requireOwner(user, *ev); err != nil {
			return err
		}
		ev.Budget = models.Budget{Total: req.Total, Currency: currency, Categories: categories}
		return nil
	})
	if err != nil {
		return models.Budget{}, err
	}
	return ev.Budget, nil
}

// AddExpense records a pending expense. The matching category's spent figure
// grows right away, before anyone approves the expense.
func (s *BudgetService) AddExpense(ctx context.Context, eventID string, req AddExpenseRequest) (expense models.Expense, err error) {
	ctx, done := s.begin(ctx, "add_expense", attribute.String("event_id", eventID))
	defer done(&err)

	if !req.Category.Valid() {
		return models.Expense{}, status.Validation("unknown expense category %q", req.Category)
	}
	if strings.TrimSpace(req.Description) == "" {
		return models.Expense{}, status.Validation("expense description is required")
	}
	if err := validateAmount("expense amount", req.Amount); err != nil {
		return models.Expense{}, err
	}
	user, err := s.caller(ctx)
	if err != nil {
		return models.Expense{}, err
	}

	expense = models.Expense{
		ID:          s.NewID(),
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		Status:      models.ExpensePending,
		AddedBy:     user.ID,
		AddedAt:     s.Now(),
	}
	_, err = s.Store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		if err := requireOwner(user, *ev); err != nil {
			return err
		}
		if i := ev.Budget.FindCategory(req.Category); i >= 0 {
			ev.Budget.Categories[i].Spent = ev.Budget.Categories[i].Spent.Add(req.Amount)
		}
		ev.Expenses = append(ev.Expenses, expense)
		return nil
	})
	if err != nil {
		return models.Expense{}, err
	}
	return expense, nil
}

func (s *BudgetService) ApproveExpense(ctx context.Context, eventID, expenseID string) (models.Expense, error) {
	return s.decideExpense(ctx, "approve_expense", eventID, expenseID, models.ExpenseApproved, "")
}

// RejectExpense leaves the category's spent figure untouched.
func (s *BudgetService) RejectExpense(ctx context.Context, eventID, expenseID, reason string) (models.Expense, error) {
	return s.decideExpense(ctx, "reject_expense", eventID, expenseID, models.ExpenseRejected, reason)
}

func (s *BudgetService) decideExpense(ctx context.Context, op, eventID, expenseID string, decision models.ExpenseStatus, reason string) (expense models.Expense, err error) {
	ctx, done := s.begin(ctx, op,
		attribute.String("event_id", eventID),
		attribute.String("expense_id", expenseID),
	)
	defer done(&err)

	user, err := s.caller(ctx)
	if err != nil {
		return models.Expense{}, err
	}
	if err := requireAdmin(user); err != nil {
		return models.Expense{}, err
	}
	_, err = s.Store.UpdateEvent(ctx, eventID, func(ev *models.Event) error {
		i := ev.FindExpense(expenseID)
		if i < 0 {
			return status.NotFound("expense", expenseID)
		}
		x := &ev.Expenses[i]
		if x.Status != models.ExpensePending {
			return status.StateGuard("expense is already %s", x.Status)
		}
		now := s.Now()
		x.Status = decision
		switch decision {
		case models.ExpenseApproved:
			x.ApprovedBy = user.ID
			x.ApprovedAt = &now
		case models.ExpenseRejected:
			x.RejectedBy = user.ID
			x.RejectedAt = &now
			x.Reason = reason
		}
		expense = *x
		return nil
	})
	if err != nil {
		return models.Expense{}, err
	}

	s.notify(ctx, notify.Notification{
		Recipients: []string{expense.AddedBy},
		Type:       notify.TypeExpenseDecided,
		Message:    fmt.Sprintf("Expense %q was %s", expense.Description, decision),
		Metadata:   map[string]string{"event_id": eventID, "expense_id": expenseID, "status": string(decision)},
	})
	return expense, nil
}

func (s *BudgetService) Summary(ctx context.Context, eventID string) (summary models.BudgetSummary, err error) {
	ctx, done := s.begin(ctx, "budget_summary", attribute.String("event_id", eventID))
	defer done(&err)

	ev, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		return models.BudgetSummary{}, err
	}
	return models.Summarize(ev.Budget, ev.Expenses), nil
}
