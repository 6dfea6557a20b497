package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"expense-approvals/internal/auth"
	"expense-approvals/internal/guard"
	"expense-approvals/internal/handlers"
	"expense-approvals/internal/ledger"
	"expense-approvals/internal/models"
	"expense-approvals/internal/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := storage.NewDB(":memory:")
	require.NoError(t, err, "failed to create database")
	t.Cleanup(func() { db.Close() })

	store := storage.NewStore(db, zerolog.Nop())
	dir := auth.NewDirectory(store)
	_, err = dir.EnsureSeed(context.Background(), "", "")
	require.NoError(t, err)
	_, err = dir.AddUser(context.Background(), models.NewUser{
		Username: "wes", Email: "wes@example.com", Password: "pw", Role: models.RoleUser, Department: "Engineering",
	})
	require.NoError(t, err)

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "style.css"), []byte("body{}"), 0o644))

	h := handlers.NewHandlers(dir, ledger.New(store), zerolog.Nop(), false)
	g := guard.New(guard.DefaultRoutes)
	srv := httptest.NewServer(g.Middleware(h.Session, zerolog.Nop())(setupRouter(h, staticDir)))
	t.Cleanup(srv.Close)
	return srv
}

// newBrowser returns a client that keeps cookies and does not follow redirects.
func newBrowser(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func login(t *testing.T, c *http.Client, base, username, password string) {
	t.Helper()
	resp, err := c.PostForm(base+"/login", url.Values{"username": {username}, "password": {password}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestSetupRouter(t *testing.T) {
	srv := newTestServer(t)
	anon := newBrowser(t)

	tests := []struct {
		name         string
		method       string
		path         string
		wantStatus   int
		wantLocation string
	}{
		{name: "Root redirects to login", method: "GET", path: "/", wantStatus: http.StatusFound, wantLocation: "/login"},
		{name: "List expenses requires auth", method: "GET", path: "/expenses", wantStatus: http.StatusFound, wantLocation: "/login"},
		{name: "Unknown path requires auth", method: "GET", path: "/nowhere", wantStatus: http.StatusFound, wantLocation: "/login"},
		{name: "Login page is public", method: "GET", path: "/login", wantStatus: http.StatusOK},
		{name: "Signup page is public", method: "GET", path: "/signup", wantStatus: http.StatusOK},
		{name: "Static file access", method: "GET", path: "/static/style.css", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, http.NoBody)
			require.NoError(t, err)
			resp, err := anon.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode, "%s %s returned unexpected status", tt.method, tt.path)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, resp.Header.Get("Location"))
			}
		})
	}
}

func TestLoggedInNavigation(t *testing.T) {
	srv := newTestServer(t)
	c := newBrowser(t)
	login(t, c, srv.URL, "wes", "pw")

	resp, err := c.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = c.Get(srv.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode, "logged-in profiles skip the login page")
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, err = c.Get(srv.URL + "/reports")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Equal(t, "Access restricted: User users cannot view reports.", resp.Header.Get(guard.NoticeHeader))

	resp, err = c.Get(srv.URL + "/")
	require.NoError(t, err)
	var dash handlers.DashboardViewModel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dash))
	resp.Body.Close()
	assert.Equal(t, "Access restricted: User users cannot view reports.", dash.Notice)

	resp, err = c.Get(srv.URL + "/nowhere")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = c.PostForm(srv.URL+"/logout", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, err = c.Get(srv.URL + "/expenses")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestLogStoreWarnings(t *testing.T) {
	var buf bytes.Buffer
	logStoreWarnings(zerolog.New(&buf), []string{"expenses: invalid character 'x'"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "expenses: invalid character 'x'", entry["warning"])
	assert.NotContains(t, entry, "key")
}

func TestApprovalFlow(t *testing.T) {
	srv := newTestServer(t)

	employee := newBrowser(t)
	login(t, employee, srv.URL, "wes", "pw")
	resp, err := employee.PostForm(srv.URL+"/expenses/new", url.Values{
		"merchant": {"Hotel"},
		"category": {"cat-3"},
		"amount":   {"180.00"},
		"currency": {"EUR"},
		"status":   {"submitted"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created handlers.ExpenseItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	resp, err = employee.PostForm(srv.URL+"/approvals/"+created.ID+"/approve", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode, "users cannot reach approvals")

	admin := newBrowser(t)
	login(t, admin, srv.URL, "admin", "admin")
	resp, err = admin.PostForm(srv.URL+"/approvals/"+created.ID+"/approve", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var decided handlers.ExpenseItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decided))
	resp.Body.Close()
	assert.Equal(t, models.StatusApproved, decided.Status)

	resp, err = admin.Get(srv.URL + "/reports/download?type=approval&format=csv")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), created.ID+",wes,admin,approved,180.00")
}
