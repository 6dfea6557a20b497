package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"expense-approvals/internal/ledger"
	"expense-approvals/internal/models"

	"github.com/shopspring/decimal"
)

// StatsCategoryItem represents a category with its approved spend in a month.
type StatsCategoryItem struct {
	Category   models.Category `json:"category"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	Percentage decimal.Decimal `json:"percentage"`
}

// StatsViewModel is the data of the reports page.
type StatsViewModel struct {
	Year           int                 `json:"year"`
	Month          int                 `json:"month"`
	MonthName      string              `json:"monthName"`
	Total          decimal.Decimal     `json:"total"`
	Categories     []StatsCategoryItem `json:"categories"`
	Expenses       []ExpenseItem       `json:"expenses"`
	PrevYear       int                 `json:"prevYear"`
	PrevMonth      int                 `json:"prevMonth"`
	NextYear       int                 `json:"nextYear"`
	NextMonth      int                 `json:"nextMonth"`
	IsCurrentMonth bool                `json:"isCurrentMonth"`
	Summary        ledger.Summary      `json:"summary"`
}

// Reports renders approved spend for one month, selected with the year and
// month query parameters, next to the overall summary.
func (h *Handlers) Reports(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	year := now.Year()
	month := int(now.Month())

	if y, err := strconv.Atoi(r.URL.Query().Get("year")); err == nil {
		year = y
	}
	if m, err := strconv.Atoi(r.URL.Query().Get("month")); err == nil && m >= 1 && m <= 12 {
		month = m
	}

	expenses, err := h.ledger.ListExpenses(r.Context())
	if err != nil {
		h.serverError(w, r, err, "list expenses")
		return
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var inMonth []models.Expense
	for _, e := range ledger.InRange(expenses, start, end.Add(-time.Nanosecond)) {
		if e.Status == models.StatusApproved {
			inMonth = append(inMonth, e)
		}
	}

	vm := StatsViewModel{
		Year:           year,
		Month:          month,
		MonthName:      time.Month(month).String(),
		Total:          decimal.Zero,
		Categories:     categoryBreakdown(inMonth),
		Expenses:       expenseItems(inMonth),
		PrevYear:       start.AddDate(0, -1, 0).Year(),
		PrevMonth:      int(start.AddDate(0, -1, 0).Month()),
		NextYear:       end.Year(),
		NextMonth:      int(end.Month()),
		IsCurrentMonth: year == now.Year() && month == int(now.Month()),
		Summary:        ledger.Summarize(expenses, now, 6),
	}
	for _, c := range vm.Categories {
		vm.Total = vm.Total.Add(c.Total)
	}
	h.render(w, http.StatusOK, vm)
}

// categoryBreakdown totals expenses per category, in category list order,
// leaving out empty categories.
func categoryBreakdown(expenses []models.Expense) []StatsCategoryItem {
	total := decimal.Zero
	byID := make(map[string]*StatsCategoryItem)
	for _, e := range expenses {
		c := models.LookupCategory(e.Category)
		item, ok := byID[c.ID]
		if !ok {
			item = &StatsCategoryItem{Category: c, Total: decimal.Zero}
			byID[c.ID] = item
		}
		item.Total = item.Total.Add(e.Amount)
		item.Count++
		total = total.Add(e.Amount)
	}

	items := make([]StatsCategoryItem, 0, len(byID))
	for _, c := range models.Categories {
		item, ok := byID[c.ID]
		if !ok {
			continue
		}
		item.Percentage = decimal.Zero
		if total.IsPositive() {
			item.Percentage = item.Total.Div(total).Mul(decimal.NewFromInt(100)).Round(1)
		}
		items = append(items, *item)
	}
	return items
}

// DownloadReport streams a report as CSV. The from and to query parameters
// (YYYY-MM-DD, inclusive) narrow the expenses by date.
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := ledger.ParseReportKind(q.Get("type"))
	if err != nil {
		h.render(w, http.StatusUnprocessableEntity, apiError{Detail: err.Error()})
		return
	}
	if format := q.Get("format"); format != "" && format != "csv" {
		h.render(w, http.StatusUnprocessableEntity, apiError{Detail: "unsupported format " + format})
		return
	}
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		h.render(w, http.StatusUnprocessableEntity, apiError{Detail: err.Error()})
		return
	}

	expenses, err := h.ledger.ListExpenses(r.Context())
	if err != nil {
		h.serverError(w, r, err, "list expenses")
		return
	}

	filename := fmt.Sprintf("%s_report_%s.csv", kind, h.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := ledger.WriteCSV(w, kind, ledger.InRange(expenses, from, to)); err != nil {
		h.log.Error().Err(err).Str("type", string(kind)).Msg("write report")
	}
}

func parseRange(fromStr, toStr string) (from, to time.Time, err error) {
	if fromStr != "" {
		if from, err = time.Parse("2006-01-02", fromStr); err != nil {
			return from, to, errors.New("from must be YYYY-MM-DD")
		}
	}
	if toStr != "" {
		if to, err = time.Parse("2006-01-02", toStr); err != nil {
			return from, to, errors.New("to must be YYYY-MM-DD")
		}
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return from, to, nil
}
