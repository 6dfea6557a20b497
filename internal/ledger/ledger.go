// Package ledger records expenses and moves them through
// draft -> submitted -> approved/rejected.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expense-approvals/internal/guard"
	"expense-approvals/internal/models"
	"expense-approvals/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("expense not found")
	ErrUnauthenticated   = errors.New("no authenticated user")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInvalidDecision   = errors.New("decision must be approved or rejected")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyDecided    = errors.New("expense has already been decided")
	ErrNotApprover       = errors.New("user is not allowed to approve expenses")
	ErrSelfApproval      = errors.New("an expense cannot be decided by its submitter")
	ErrNotOwner          = errors.New("only the submitter may change this expense")
)

// Ledger is the expense collection and the operations that change it.
type Ledger struct {
	store *storage.Store
	now   func() time.Time
	newID func() string

	allowSelfApproval bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// WithSelfApproval lets approvers decide expenses they submitted themselves.
func WithSelfApproval(allowed bool) Option {
	return func(l *Ledger) { l.allowSelfApproval = allowed }
}

// New creates a Ledger over store.
func New(store *storage.Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListExpenses returns every expense in insertion order.
func (l *Ledger) ListExpenses(ctx context.Context) ([]models.Expense, error) {
	var expenses []models.Expense
	if _, err := l.store.Load(ctx, storage.ExpensesKey, &expenses); err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	return expenses, nil
}

// ListByStatus returns the expenses currently in status, in insertion order.
func (l *Ledger) ListByStatus(ctx context.Context, status models.Status) ([]models.Expense, error) {
	expenses, err := l.ListExpenses(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Expense
	for _, e := range expenses {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

// Get returns the expense with the given id.
func (l *Ledger) Get(ctx context.Context, id string) (*models.Expense, error) {
	expenses, err := l.ListExpenses(ctx)
	if err != nil {
		return nil, err
	}
	if idx := indexOf(expenses, id); idx >= 0 {
		return &expenses[idx], nil
	}
	return nil, ErrNotFound
}

// AddExpense records a new draft or submitted expense owned by submitter.
func (l *Ledger) AddExpense(ctx context.Context, data models.NewExpense, submitter *models.User) (*models.Expense, error) {
	if submitter == nil {
		return nil, ErrUnauthenticated
	}
	if !data.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if data.Status == "" {
		data.Status = models.StatusDraft
	}
	if data.Status != models.StatusDraft && data.Status != models.StatusSubmitted {
		return nil, fmt.Errorf("%w: new expenses start as draft or submitted", ErrInvalidTransition)
	}

	now := l.now()
	if data.Date.IsZero() {
		data.Date = now
	}
	e := models.Expense{
		ID:          l.newID(),
		Date:        data.Date,
		Merchant:    data.Merchant,
		Category:    data.Category,
		Amount:      data.Amount,
		Currency:    data.Currency,
		Description: data.Description,
		Status:      data.Status,
		SubmittedBy: submitter.Snapshot(),
	}
	if e.Status == models.StatusSubmitted {
		e.SubmittedAt = &now
	}

	var expenses []models.Expense
	err := l.store.Update(ctx, storage.ExpensesKey, &expenses, func(bool) error {
		expenses = append(expenses, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save expense: %w", err)
	}
	return &e, nil
}

// Submit moves a draft owned by owner to submitted.
func (l *Ledger) Submit(ctx context.Context, id string, owner *models.User) (*models.Expense, error) {
	if owner == nil {
		return nil, ErrUnauthenticated
	}
	return l.transition(ctx, id, func(e *models.Expense) error {
		if e.SubmittedBy.ID != owner.ID {
			return ErrNotOwner
		}
		if e.Status != models.StatusDraft {
			return fmt.Errorf("%w: %s expense cannot be submitted", ErrInvalidTransition, e.Status)
		}
		now := l.now()
		e.Status = models.StatusSubmitted
		e.SubmittedAt = &now
		return nil
	})
}

// SetDecision approves or rejects a submitted expense on behalf of approver.
//
// The status check and the write are one atomic update, so of two concurrent
// decisions on the same expense exactly one succeeds and the other gets
// ErrAlreadyDecided.
func (l *Ledger) SetDecision(ctx context.Context, id string, decision models.Status, approver *models.User) (*models.Expense, error) {
	if !decision.Decided() {
		return nil, ErrInvalidDecision
	}
	if approver == nil {
		return nil, ErrUnauthenticated
	}
	if !guard.Can(approver.Role, guard.Approve) {
		return nil, ErrNotApprover
	}
	return l.transition(ctx, id, func(e *models.Expense) error {
		switch {
		case e.Status.Decided():
			return ErrAlreadyDecided
		case e.Status != models.StatusSubmitted:
			return fmt.Errorf("%w: %s expense cannot be decided", ErrInvalidTransition, e.Status)
		case e.SubmittedBy.ID == approver.ID && !l.allowSelfApproval:
			return ErrSelfApproval
		}
		now := l.now()
		if e.SubmittedAt != nil && now.Before(*e.SubmittedAt) {
			now = *e.SubmittedAt
		}
		snap := approver.Snapshot()
		e.Status = decision
		e.ApprovedBy = &snap
		e.ApprovedAt = &now
		return nil
	})
}

// transition applies change to one expense as a single atomic update.
func (l *Ledger) transition(ctx context.Context, id string, change func(*models.Expense) error) (*models.Expense, error) {
	var expenses []models.Expense
	var updated models.Expense
	err := l.store.Update(ctx, storage.ExpensesKey, &expenses, func(bool) error {
		idx := indexOf(expenses, id)
		if idx < 0 {
			return ErrNotFound
		}
		if err := change(&expenses[idx]); err != nil {
			return err
		}
		updated = expenses[idx]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func indexOf(expenses []models.Expense, id string) int {
	for i, e := range expenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}
