package handlers

import (
	"net/http"

	"expense-approvals/internal/models"
)

// ApprovalsViewModel lists the expenses waiting for a decision.
type ApprovalsViewModel struct {
	Pending []ExpenseItem `json:"pending"`
}

// ListApprovals renders the submitted expenses in submission order.
func (h *Handlers) ListApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.ledger.ListByStatus(r.Context(), models.StatusSubmitted)
	if err != nil {
		h.serverError(w, r, err, "list approvals")
		return
	}
	h.render(w, http.StatusOK, ApprovalsViewModel{Pending: expenseItems(pending)})
}

var decisions = map[string]models.Status{
	"approve": models.StatusApproved,
	"reject":  models.StatusRejected,
}

// Decide approves or rejects a submitted expense as the session user.
func (h *Handlers) Decide(w http.ResponseWriter, r *http.Request) {
	decision, ok := decisions[r.PathValue("decision")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	user := currentUser(r)

	expense, err := h.ledger.SetDecision(r.Context(), r.PathValue("id"), decision, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info().
		Str("expense_id", expense.ID).
		Str("status", string(expense.Status)).
		Int("approver_id", user.ID).
		Msg("expense decided")
	h.render(w, http.StatusOK, newExpenseItem(*expense))
}
