package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"campus-events/internal/services"
)

type BudgetHandler struct {
	budget *services.BudgetService
}

func NewBudgetHandler(budget *services.BudgetService) *BudgetHandler {
	return &BudgetHandler{budget: budget}
}

func (h *BudgetHandler) SetBudget(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req services.SetBudgetRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	budget, err := h.budget.SetBudget(ctx, e.Request.PathValue("id"), req)
	return respond(e, http.StatusOK, budget, err)
}

func (h *BudgetHandler) AddExpense(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req services.AddExpenseRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	expense, err := h.budget.AddExpense(ctx, e.Request.PathValue("id"), req)
	return respond(e, http.StatusCreated, expense, err)
}

func (h *BudgetHandler) ApproveExpense(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	expense, err := h.budget.ApproveExpense(ctx, e.Request.PathValue("id"), e.Request.PathValue("expenseId"))
	return respond(e, http.StatusOK, expense, err)
}

func (h *BudgetHandler) RejectExpense(e *core.RequestEvent) error {
	ctx, err := callerContext(e)
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := bindBody(e, &req); err != nil {
		return err
	}
	expense, err := h.budget.RejectExpense(ctx, e.Request.PathValue("id"), e.Request.PathValue("expenseId"), req.Reason)
	return respond(e, http.StatusOK, expense, err)
}

func (h *BudgetHandler) Summary(e *core.RequestEvent) error {
	summary, err := h.budget.Summary(e.Request.Context(), e.Request.PathValue("id"))
	return respond(e, http.StatusOK, summary, err)
}
