package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"expense-approvals/internal/guard"
	"expense-approvals/internal/ledger"
	"expense-approvals/internal/models"

	"github.com/shopspring/decimal"
)

// ExpenseItem represents an expense in list views.
type ExpenseItem struct {
	models.Expense
	CategoryName string `json:"categoryName"`
	CategoryIcon string `json:"categoryIcon"`
}

func newExpenseItem(e models.Expense) ExpenseItem {
	c := models.LookupCategory(e.Category)
	return ExpenseItem{Expense: e, CategoryName: c.Name, CategoryIcon: c.Icon}
}

func expenseItems(expenses []models.Expense) []ExpenseItem {
	items := make([]ExpenseItem, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, newExpenseItem(e))
	}
	return items
}

// ExpenseGroup groups expenses by date.
type ExpenseGroup struct {
	Title string          `json:"title"`
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
	Items []ExpenseItem   `json:"items"`
}

// ListViewModel is the data of the expense list.
type ListViewModel struct {
	Total  decimal.Decimal `json:"total"`
	Groups []ExpenseGroup  `json:"groups"`
}

// DashboardViewModel is the data of the home page.
type DashboardViewModel struct {
	User             models.Snapshot `json:"user"`
	Notice           string          `json:"notice,omitempty"`
	Summary          ledger.Summary  `json:"summary"`
	Recent           []ExpenseItem   `json:"recent"`
	PendingApprovals int             `json:"pendingApprovals"`
}

// Dashboard renders the home page, including any pending access notice.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	notice := guard.TakeNotice(w, r)

	expenses, err := h.ledger.ListExpenses(r.Context())
	if err != nil {
		h.serverError(w, r, err, "list expenses")
		return
	}
	summary := ledger.Summarize(expenses, h.now(), 6)

	vm := DashboardViewModel{
		User:    user.Snapshot(),
		Notice:  notice,
		Summary: summary,
		Recent:  expenseItems(ledger.RecentActivity(expenses, 5)),
	}
	if guard.Can(user.Role, guard.Approve) {
		vm.PendingApprovals = summary.ByStatus[models.StatusSubmitted].Count
	}
	h.render(w, http.StatusOK, vm)
}

// ListExpenses renders the expenses grouped by day, newest first. The optional
// status query parameter filters the list.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	var (
		expenses []models.Expense
		err      error
	)
	if s := r.URL.Query().Get("status"); s != "" {
		status := models.Status(s)
		if !status.Valid() {
			h.render(w, http.StatusUnprocessableEntity, apiError{Detail: "unknown status " + s})
			return
		}
		expenses, err = h.ledger.ListByStatus(r.Context(), status)
	} else {
		expenses, err = h.ledger.ListExpenses(r.Context())
	}
	if err != nil {
		h.serverError(w, r, err, "list expenses")
		return
	}

	h.render(w, http.StatusOK, h.groupByDay(expenses))
}

func (h *Handlers) groupByDay(expenses []models.Expense) ListViewModel {
	groupsMap := make(map[string]*ExpenseGroup)
	total := decimal.Zero

	for _, e := range expenses {
		dateStr := e.Date.Format("2006-01-02")
		if _, ok := groupsMap[dateStr]; !ok {
			groupsMap[dateStr] = &ExpenseGroup{Date: dateStr, Title: h.formatGroupTitle(e.Date), Total: decimal.Zero}
		}
		group := groupsMap[dateStr]
		group.Total = group.Total.Add(e.Amount)
		total = total.Add(e.Amount)
		group.Items = append(group.Items, newExpenseItem(e))
	}

	groups := make([]ExpenseGroup, 0, len(groupsMap))
	for _, g := range groupsMap {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Date > groups[j].Date })

	return ListViewModel{Total: total, Groups: groups}
}

// FormViewModel is the data of the create form.
type FormViewModel struct {
	Categories []models.Category `json:"categories"`
	Currencies []models.Currency `json:"currencies"`
	Today      string            `json:"today"`
}

// CreateExpenseForm renders the form to create a new expense.
func (h *Handlers) CreateExpenseForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, FormViewModel{
		Categories: models.Categories,
		Currencies: models.Currencies,
		Today:      h.now().UTC().Format("2006-01-02"),
	})
}

type expenseForm struct {
	Date        string          `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Merchant    string          `form:"merchant" validate:"required,max=120"`
	Category    string          `form:"category" validate:"required,category"`
	Amount      decimal.Decimal `form:"amount" validate:"gt=0"`
	Currency    string          `form:"currency" validate:"required,currency"`
	Description string          `form:"description" validate:"max=1000"`
	Status      string          `form:"status" validate:"omitempty,oneof=draft submitted"`
}

// CreateExpense records a new expense for the session user. It is saved as a
// draft unless status=submitted is posted.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	form := expenseForm{
		Date:        strings.TrimSpace(r.FormValue("date")),
		Merchant:    strings.TrimSpace(r.FormValue("merchant")),
		Category:    r.FormValue("category"),
		Currency:    strings.ToUpper(strings.TrimSpace(r.FormValue("currency"))),
		Description: strings.TrimSpace(r.FormValue("description")),
		Status:      r.FormValue("status"),
	}
	// an unparsable amount stays zero and fails gt=0
	form.Amount, _ = decimal.NewFromString(strings.TrimSpace(r.FormValue("amount")))
	if !h.checkForm(w, form) {
		return
	}

	var date time.Time
	if form.Date != "" {
		date, _ = time.Parse("2006-01-02", form.Date)
	}

	expense, err := h.ledger.AddExpense(r.Context(), models.NewExpense{
		Date:        date,
		Merchant:    form.Merchant,
		Category:    form.Category,
		Amount:      form.Amount,
		Currency:    models.Currency(form.Currency),
		Description: form.Description,
		Status:      models.Status(form.Status),
	}, currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info().Str("expense_id", expense.ID).Str("status", string(expense.Status)).Msg("expense created")
	w.Header().Set("Location", "/expenses/"+expense.ID)
	h.render(w, http.StatusCreated, newExpenseItem(*expense))
}

// GetExpense renders one expense.
func (h *Handlers) GetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := h.ledger.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, http.StatusOK, newExpenseItem(*expense))
}

// SubmitExpense sends a draft of the session user for approval.
func (h *Handlers) SubmitExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := h.ledger.Submit(r.Context(), r.PathValue("id"), currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info().Str("expense_id", expense.ID).Msg("expense submitted")
	h.render(w, http.StatusOK, newExpenseItem(*expense))
}

func (h *Handlers) formatGroupTitle(date time.Time) string {
	now := h.now().UTC()
	dateStr := date.Format("2006-01-02")

	if dateStr == now.Format("2006-01-02") {
		return "TODAY"
	}
	if dateStr == now.AddDate(0, 0, -1).Format("2006-01-02") {
		return "YESTERDAY"
	}
	return strings.ToUpper(date.Format("Mon, 02 Jan '06"))
}
