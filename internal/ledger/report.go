package ledger

import (
	"encoding/csv"
	"errors"
	"io"
	"sort"
	"strconv"
	"time"

	"expense-approvals/internal/models"

	"github.com/shopspring/decimal"
)

// StatusTotal counts and sums the expenses in one status.
type StatusTotal struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// CategoryTotal is the approved spend in one category.
type CategoryTotal struct {
	Category models.Category `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// DepartmentTotal breaks a department's spend down by outcome.
type DepartmentTotal struct {
	Department string          `json:"department"`
	Total      decimal.Decimal `json:"total"`
	Approved   decimal.Decimal `json:"approved"`
	Pending    decimal.Decimal `json:"pending"`
	Rejected   decimal.Decimal `json:"rejected"`
}

// MonthTotal is the approved spend dated within one calendar month.
type MonthTotal struct {
	Label  string          `json:"label"`
	Year   int             `json:"year"`
	Month  time.Month      `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary aggregates a set of expenses for the dashboard and reports pages.
// Amounts are summed as-is regardless of currency.
type Summary struct {
	ByStatus     map[models.Status]StatusTotal `json:"byStatus"`
	ByCategory   []CategoryTotal               `json:"byCategory"`
	ByDepartment []DepartmentTotal             `json:"byDepartment"`
	Monthly      []MonthTotal                  `json:"monthly"`
}

// Summarize aggregates expenses. Monthly covers the months calendar months
// ending with the month of now, oldest first. Months are UTC calendar months,
// matching how expense dates are stored.
func Summarize(expenses []models.Expense, now time.Time, months int) Summary {
	s := Summary{ByStatus: make(map[models.Status]StatusTotal, len(models.Statuses))}
	for _, st := range models.Statuses {
		s.ByStatus[st] = StatusTotal{Amount: decimal.Zero}
	}

	byCategory := make(map[string]decimal.Decimal)
	byDept := make(map[string]*DepartmentTotal)
	for _, e := range expenses {
		t := s.ByStatus[e.Status]
		t.Count++
		t.Amount = t.Amount.Add(e.Amount)
		s.ByStatus[e.Status] = t

		if e.Status == models.StatusApproved {
			cat := models.LookupCategory(e.Category).ID
			byCategory[cat] = byCategory[cat].Add(e.Amount)
		}

		if e.Status == models.StatusDraft {
			continue
		}
		d, ok := byDept[e.SubmittedBy.Department]
		if !ok {
			d = &DepartmentTotal{Department: e.SubmittedBy.Department}
			byDept[e.SubmittedBy.Department] = d
		}
		d.Total = d.Total.Add(e.Amount)
		switch e.Status {
		case models.StatusApproved:
			d.Approved = d.Approved.Add(e.Amount)
		case models.StatusRejected:
			d.Rejected = d.Rejected.Add(e.Amount)
		default:
			d.Pending = d.Pending.Add(e.Amount)
		}
	}

	for _, c := range models.Categories {
		s.ByCategory = append(s.ByCategory, CategoryTotal{Category: c, Amount: byCategory[c.ID]})
	}

	for _, d := range byDept {
		s.ByDepartment = append(s.ByDepartment, *d)
	}
	sort.Slice(s.ByDepartment, func(i, j int) bool {
		return s.ByDepartment[i].Department < s.ByDepartment[j].Department
	})

	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
	for i := 0; i < months; i++ {
		start := first.AddDate(0, i, 0)
		end := start.AddDate(0, 1, 0)
		m := MonthTotal{Label: start.Format("Jan 2006"), Year: start.Year(), Month: start.Month(), Amount: decimal.Zero}
		for _, e := range expenses {
			if e.Status == models.StatusApproved && !e.Date.Before(start) && e.Date.Before(end) {
				m.Amount = m.Amount.Add(e.Amount)
			}
		}
		s.Monthly = append(s.Monthly, m)
	}
	return s
}

// RecentActivity returns up to n non-draft expenses, most recently touched first.
func RecentActivity(expenses []models.Expense, n int) []models.Expense {
	var out []models.Expense
	for _, e := range expenses {
		if e.Status != models.StatusDraft {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity().After(out[j].LastActivity())
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// InRange returns the expenses dated within [from, to]. A zero bound is open.
func InRange(expenses []models.Expense, from, to time.Time) []models.Expense {
	var out []models.Expense
	for _, e := range expenses {
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ReportKind selects the layout of a downloadable report.
type ReportKind string

const (
	ExpenseReport  ReportKind = "expense"
	ApprovalReport ReportKind = "approval"
	SummaryReport  ReportKind = "summary"
)

// ErrUnknownReport is returned for an unsupported report kind.
var ErrUnknownReport = errors.New("unknown report type")

// ParseReportKind validates a report kind.
func ParseReportKind(s string) (ReportKind, error) {
	switch k := ReportKind(s); k {
	case ExpenseReport, ApprovalReport, SummaryReport:
		return k, nil
	}
	return "", ErrUnknownReport
}

// WriteCSV writes the report of the given kind over expenses.
func WriteCSV(w io.Writer, kind ReportKind, expenses []models.Expense) error {
	cw := csv.NewWriter(w)
	var rows [][]string
	switch kind {
	case ExpenseReport:
		rows = append(rows, []string{"Date", "Employee", "Category", "Amount", "Currency", "Status"})
		for _, e := range expenses {
			rows = append(rows, []string{
				e.Date.Format("2006-01-02"),
				e.SubmittedBy.Username,
				models.LookupCategory(e.Category).Name,
				e.Amount.StringFixed(2),
				string(e.Currency),
				string(e.Status),
			})
		}
	case ApprovalReport:
		rows = append(rows, []string{"Date", "Request ID", "Employee", "Manager", "Status", "Amount"})
		for _, e := range expenses {
			if e.Status == models.StatusDraft {
				continue
			}
			manager := ""
			if e.ApprovedBy != nil {
				manager = e.ApprovedBy.Username
			}
			submitted := e.Date
			if e.SubmittedAt != nil {
				submitted = *e.SubmittedAt
			}
			rows = append(rows, []string{
				submitted.Format("2006-01-02"),
				e.ID,
				e.SubmittedBy.Username,
				manager,
				string(e.Status),
				e.Amount.StringFixed(2),
			})
		}
	case SummaryReport:
		rows = append(rows, []string{"Department", "Total Expenses", "Approved", "Pending", "Rejected", "Count"})
		for _, d := range Summarize(expenses, time.Now(), 1).ByDepartment {
			rows = append(rows, []string{
				d.Department,
				d.Total.StringFixed(2),
				d.Approved.StringFixed(2),
				d.Pending.StringFixed(2),
				d.Rejected.StringFixed(2),
				strconv.Itoa(countDepartment(expenses, d.Department)),
			})
		}
	default:
		return ErrUnknownReport
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func countDepartment(expenses []models.Expense, dept string) int {
	n := 0
	for _, e := range expenses {
		if e.Status != models.StatusDraft && e.SubmittedBy.Department == dept {
			n++
		}
	}
	return n
}
