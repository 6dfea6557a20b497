package handlers

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"expense-approvals/internal/auth"
	"expense-approvals/internal/guard"
	"expense-approvals/internal/ledger"
	"expense-approvals/internal/models"

	"github.com/rs/zerolog"
)

const (
	// ProfileCookieName identifies the browser profile that owns a session.
	ProfileCookieName = "profile"
	// ProfileDuration is how long a profile cookie lasts (30 days).
	ProfileDuration = 30 * 24 * time.Hour
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	dir          *auth.Directory
	ledger       *ledger.Ledger
	log          zerolog.Logger
	secureCookie bool
	now          func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(dir *auth.Directory, l *ledger.Ledger, log zerolog.Logger, secureCookie bool) *Handlers {
	return &Handlers{dir: dir, ledger: l, log: log, secureCookie: secureCookie, now: time.Now}
}

// Session resolves the logged-in user of the request's browser profile.
// It is the guard's SessionFunc.
func (h *Handlers) Session(r *http.Request) (*models.User, error) {
	profile := profileID(r)
	if profile == "" {
		return nil, nil
	}
	return h.dir.ForProfile(profile).CurrentSession(r.Context())
}

// directory returns the directory view bound to the request's profile.
func (h *Handlers) directory(r *http.Request) *auth.Directory {
	return h.dir.ForProfile(profileID(r))
}

func profileID(r *http.Request) string {
	cookie, err := r.Cookie(ProfileCookieName)
	if err != nil || !validProfileID(cookie.Value) {
		return ""
	}
	return cookie.Value
}

func validProfileID(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ensureProfile returns the request's profile id, issuing a new profile
// cookie when the browser has none.
func (h *Handlers) ensureProfile(w http.ResponseWriter, r *http.Request) (string, error) {
	if id := profileID(r); id != "" {
		return id, nil
	}
	id, err := auth.GenerateSessionToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ProfileCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ProfileDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Error string `json:"error,omitempty"`
}

// LoginForm renders the login page. Logged-in profiles never get here; the
// guard sends them home.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, LoginViewModel{})
}

type loginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, LoginViewModel{Error: "Invalid form submission"})
		return
	}
	form := loginForm{
		Username: r.FormValue("username"),
		Password: r.FormValue("password"),
	}
	if validate.Struct(form) != nil {
		h.render(w, http.StatusUnprocessableEntity, LoginViewModel{Error: "Username and password are required"})
		return
	}

	user, err := h.dir.CheckLogin(r.Context(), form.Username, form.Password)
	if err != nil {
		h.serverError(w, r, err, "check login")
		return
	}
	if user == nil {
		h.render(w, http.StatusUnauthorized, LoginViewModel{Error: "Invalid username or password"})
		return
	}

	h.startSession(w, r, *user)
}

// SignupViewModel holds data for the signup page.
type SignupViewModel struct {
	Departments []string `json:"departments"`
}

// SignupForm renders the signup page.
func (h *Handlers) SignupForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, SignupViewModel{Departments: models.Departments})
}

type signupForm struct {
	Username   string `form:"username" validate:"required,max=64"`
	Email      string `form:"email" validate:"required,email"`
	Password   string `form:"password" validate:"required"`
	Department string `form:"department" validate:"omitempty,department"`
}

// Signup creates a User account and logs it in on this profile.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	form := signupForm{
		Username:   strings.TrimSpace(r.FormValue("username")),
		Email:      strings.TrimSpace(r.FormValue("email")),
		Password:   r.FormValue("password"),
		Department: strings.TrimSpace(r.FormValue("department")),
	}
	if !h.checkForm(w, form) {
		return
	}

	user, err := h.dir.AddUser(r.Context(), models.NewUser{
		Username:   form.Username,
		Email:      form.Email,
		Password:   form.Password,
		Role:       models.RoleUser,
		Department: form.Department,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info().Int("user_id", user.ID).Str("username", user.Username).Msg("user signed up")
	h.startSession(w, r, *user)
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, user models.User) {
	profile, err := h.ensureProfile(w, r)
	if err != nil {
		h.serverError(w, r, err, "issue profile")
		return
	}
	if err := h.dir.ForProfile(profile).SetCurrentSession(r.Context(), user); err != nil {
		h.serverError(w, r, err, "start session")
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout ends the session of this profile. The profile cookie stays.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.directory(r).ClearSession(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("clear session")
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// apiError is the envelope of every error response.
type apiError struct {
	Detail string `json:"detail"`
}

type validationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func (h *Handlers) render(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("encode response")
	}
}

func (h *Handlers) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, apiError{Detail: "Invalid form submission"})
		return false
	}
	return true
}

// fail maps domain errors to responses.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrUnauthenticated):
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, auth.ErrNotFound):
		h.render(w, http.StatusNotFound, apiError{Detail: err.Error()})
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidDecision):
		h.render(w, http.StatusUnprocessableEntity, apiError{Detail: err.Error()})
	case errors.Is(err, ledger.ErrNotApprover), errors.Is(err, ledger.ErrNotOwner),
		errors.Is(err, ledger.ErrSelfApproval), errors.Is(err, auth.ErrProtectedUser):
		h.render(w, http.StatusForbidden, apiError{Detail: err.Error()})
	case errors.Is(err, ledger.ErrAlreadyDecided), errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, auth.ErrUsernameTaken), errors.Is(err, auth.ErrLastAdmin):
		h.render(w, http.StatusConflict, apiError{Detail: err.Error()})
	default:
		h.serverError(w, r, err, "request failed")
	}
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg(msg)
	h.render(w, http.StatusInternalServerError, apiError{Detail: "Internal server error"})
}

// currentUser returns the session user placed in the context by the guard.
func currentUser(r *http.Request) *models.User {
	return guard.UserFromContext(r.Context())
}
