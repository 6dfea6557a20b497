package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an expense.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusSubmitted, StatusApproved, StatusRejected}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Decided reports whether s is a terminal decision.
func (s Status) Decided() bool {
	return s == StatusApproved || s == StatusRejected
}

// Currency is an ISO currency code accepted for expenses.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// Currencies lists the supported currencies.
var Currencies = []Currency{USD, EUR, GBP}

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool {
	return slices.Contains(Currencies, c)
}

// Snapshot is a copy of a user's identity taken when they acted on an expense.
type Snapshot struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	Department string `json:"department"`
}

// Expense represents a financial expense record.
type Expense struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Merchant    string          `json:"merchant"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	Description string          `json:"description"`
	Status      Status          `json:"status"`
	SubmittedBy Snapshot        `json:"submittedBy"`
	ApprovedBy  *Snapshot       `json:"approvedBy,omitempty"`
	SubmittedAt *time.Time      `json:"submittedAt,omitempty"`
	ApprovedAt  *time.Time      `json:"approvedAt,omitempty"`
}

// LastActivity is the most recent of the decision, submission and expense dates.
func (e Expense) LastActivity() time.Time {
	if e.ApprovedAt != nil {
		return *e.ApprovedAt
	}
	if e.SubmittedAt != nil {
		return *e.SubmittedAt
	}
	return e.Date
}

// NewExpense holds the caller-supplied fields of an expense before it is recorded.
type NewExpense struct {
	Date        time.Time
	Merchant    string
	Category    string
	Amount      decimal.Decimal
	Currency    Currency
	Description string
	Status      Status
}

// Category is an entry of the fixed expense category list.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// OtherCategoryID is the category shown for unknown category references.
const OtherCategoryID = "cat-8"

// Categories is the static category list.
var Categories = []Category{
	{"cat-1", "Food & Dining", "🍔"},
	{"cat-2", "Travel", "✈️"},
	{"cat-3", "Accommodation", "🏨"},
	{"cat-4", "Office Supplies", "📦"},
	{"cat-5", "Transportation", "🚕"},
	{"cat-6", "Client Entertainment", "🎭"},
	{"cat-7", "Software & Subscriptions", "💻"},
	{OtherCategoryID, "Other", "📌"},
}

// LookupCategory returns the category with the given id, or "Other" when unknown.
func LookupCategory(id string) Category {
	for _, c := range Categories {
		if c.ID == id {
			return c
		}
	}
	return Categories[len(Categories)-1]
}

// KnownCategory reports whether id references a category in the list.
func KnownCategory(id string) bool {
	for _, c := range Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}
