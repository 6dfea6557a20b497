// Package guard decides, for every request, whether the current session may
// open the requested page.
//
// Each role holds a fixed set of capabilities and each route declares the one
// capability it needs. Routes are matched with http.ServeMux patterns, so a
// path resolves to exactly one route without string prefix tricks.
package guard

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"expense-approvals/internal/models"
)

// Capability is a permission a role may hold.
type Capability int

const (
	ViewDashboard Capability = iota + 1
	ViewExpenses
	CreateExpense
	Approve
	ViewReports
	ManageSettings
	ManageUsers
)

var capabilityNames = map[Capability]string{
	ViewDashboard:  "view dashboard",
	ViewExpenses:   "view expenses",
	CreateExpense:  "create expenses",
	Approve:        "approve expenses",
	ViewReports:    "view reports",
	ManageSettings: "manage settings",
	ManageUsers:    "manage users",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

var (
	userCaps    = []Capability{ViewDashboard, ViewExpenses, CreateExpense}
	managerCaps = append(slices.Clone(userCaps), Approve)
	adminCaps   = append(slices.Clone(managerCaps), ViewReports, ManageSettings, ManageUsers)

	roleCapabilities = map[models.Role][]Capability{
		models.RoleUser:    userCaps,
		models.RoleManager: managerCaps,
		models.RoleAdmin:   adminCaps,
	}
)

// Can reports whether role holds capability c.
func Can(role models.Role, c Capability) bool {
	return slices.Contains(roleCapabilities[role], c)
}

// Capabilities returns the capabilities of role.
func Capabilities(role models.Role) []Capability {
	return slices.Clone(roleCapabilities[role])
}

// Access says who may reach a route at all.
type Access int

const (
	// Protected routes need a session and, if set, the route's capability.
	Protected Access = iota
	// Guest routes are for visitors without a session (login, signup).
	Guest
	// Open routes are served to everyone.
	Open
)

// Route binds a ServeMux pattern to its access rule.
type Route struct {
	Pattern  string
	Access   Access
	Requires Capability
}

// DefaultRoutes is the route table of the application.
var DefaultRoutes = []Route{
	{Pattern: "/login", Access: Guest},
	{Pattern: "/signup", Access: Guest},
	{Pattern: "/static/", Access: Open},
	{Pattern: "/logout"},
	{Pattern: "/{$}"},
	{Pattern: "/expenses", Requires: ViewExpenses},
	{Pattern: "/expenses/new", Requires: CreateExpense},
	{Pattern: "/expenses/{id}", Requires: ViewExpenses},
	{Pattern: "/expenses/{id}/submit", Requires: CreateExpense},
	{Pattern: "/approvals", Requires: Approve},
	{Pattern: "/approvals/{id}/{decision}", Requires: Approve},
	{Pattern: "/reports", Requires: ViewReports},
	{Pattern: "/reports/download", Requires: ViewReports},
	{Pattern: "/settings", Requires: ManageSettings},
	{Pattern: "/profile", Requires: ViewDashboard},
	{Pattern: "/users", Requires: ManageUsers},
	{Pattern: "/users/{id}", Requires: ManageUsers},
	{Pattern: "/users/{id}/delete", Requires: ManageUsers},
}

// Action is the outcome of a guard decision.
type Action int

const (
	Allow Action = iota
	RedirectLogin
	RedirectHome
)

// Decision is what the guard wants done with a request.
type Decision struct {
	Action   Action
	Location string
	Notice   string
}

// Guard evaluates requests against a route table.
type Guard struct {
	mux    *http.ServeMux
	routes map[string]Route
}

// New builds a Guard. It panics on conflicting patterns, like http.ServeMux.
func New(routes []Route) *Guard {
	g := &Guard{mux: http.NewServeMux(), routes: make(map[string]Route, len(routes))}
	for _, r := range routes {
		g.mux.Handle(r.Pattern, http.NotFoundHandler())
		g.routes[r.Pattern] = r
	}
	return g
}

// Decide evaluates path for the session user, which is nil when logged out.
// path is the escaped request path, as http.ServeMux sees it. Paths outside
// the table only need a session; they are not found later.
func (g *Guard) Decide(user *models.User, path string) Decision {
	route := g.match(path)

	switch route.Access {
	case Open:
		return Decision{Action: Allow}
	case Guest:
		if user != nil {
			return Decision{Action: RedirectHome, Location: "/"}
		}
		return Decision{Action: Allow}
	}

	if user == nil {
		return Decision{Action: RedirectLogin, Location: "/login"}
	}
	if route.Requires != 0 && !Can(user.Role, route.Requires) {
		return Decision{
			Action:   RedirectHome,
			Location: "/",
			Notice:   fmt.Sprintf("Access restricted: %s users cannot %s.", user.Role, route.Requires),
		}
	}
	return Decision{Action: Allow}
}

func (g *Guard) match(path string) Route {
	u := &url.URL{Path: path, RawPath: path}
	if unescaped, err := url.PathUnescape(path); err == nil {
		u.Path = unescaped
	}
	req := &http.Request{Method: http.MethodGet, URL: u}
	_, pattern := g.mux.Handler(req)
	return g.routes[pattern]
}
