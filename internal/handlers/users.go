package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"expense-approvals/internal/guard"
	"expense-approvals/internal/models"
)

// ProfileViewModel is the data of the profile page.
type ProfileViewModel struct {
	User         models.Snapshot `json:"user"`
	Capabilities []string        `json:"capabilities"`
	Departments  []string        `json:"departments"`
}

func newProfileViewModel(u models.User) ProfileViewModel {
	caps := guard.Capabilities(u.Role)
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.String())
	}
	return ProfileViewModel{User: u.Snapshot(), Capabilities: names, Departments: models.Departments}
}

// SettingsViewModel is the data of the admin settings page.
type SettingsViewModel struct {
	ProfileViewModel
	Users []models.Snapshot `json:"users"`
}

// Profile renders the session user's own profile.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	h.render(w, http.StatusOK, newProfileViewModel(*user))
}

type profileForm struct {
	Username   *string `form:"username" validate:"omitempty,max=64"`
	Email      *string `form:"email" validate:"omitempty,email"`
	Password   *string `form:"password"`
	Department *string `form:"department" validate:"omitempty,department"`
}

// UpdateProfile changes the session user's own details. The role cannot be
// changed here.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if !h.parseForm(w, r) {
		return
	}
	form := profileForm{
		Username:   optional(r, "username"),
		Email:      optional(r, "email"),
		Password:   optional(r, "password"),
		Department: optional(r, "department"),
	}
	if !h.checkForm(w, form) {
		return
	}

	updated, err := h.directory(r).UpdateUser(r.Context(), user.ID, models.UserPatch{
		Username:   form.Username,
		Email:      form.Email,
		Password:   form.Password,
		Department: form.Department,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, http.StatusOK, newProfileViewModel(*updated))
}

// Settings renders the admin settings page: the admin's profile and the user
// directory.
func (h *Handlers) Settings(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	users, err := h.dir.ListUsers(r.Context())
	if err != nil {
		h.serverError(w, r, err, "list users")
		return
	}
	h.render(w, http.StatusOK, SettingsViewModel{
		ProfileViewModel: newProfileViewModel(*user),
		Users:            snapshots(users),
	})
}

// UsersViewModel is the data of the user management page.
type UsersViewModel struct {
	Users       []models.Snapshot `json:"users"`
	Roles       []models.Role     `json:"roles"`
	Departments []string          `json:"departments"`
}

// ListUsers renders every user without credentials.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.dir.ListUsers(r.Context())
	if err != nil {
		h.serverError(w, r, err, "list users")
		return
	}
	h.render(w, http.StatusOK, UsersViewModel{
		Users:       snapshots(users),
		Roles:       []models.Role{models.RoleAdmin, models.RoleManager, models.RoleUser},
		Departments: models.Departments,
	})
}

type userForm struct {
	Username   string `form:"username" validate:"required,max=64"`
	Email      string `form:"email" validate:"required,email"`
	Password   string `form:"password" validate:"required"`
	Role       string `form:"role" validate:"required,role"`
	Department string `form:"department" validate:"required,department"`
}

// CreateUser adds a user from the admin user form.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	form := userForm{
		Username:   strings.TrimSpace(r.FormValue("username")),
		Email:      strings.TrimSpace(r.FormValue("email")),
		Password:   r.FormValue("password"),
		Role:       r.FormValue("role"),
		Department: r.FormValue("department"),
	}
	if !h.checkForm(w, form) {
		return
	}

	user, err := h.dir.AddUser(r.Context(), models.NewUser{
		Username:   form.Username,
		Email:      form.Email,
		Password:   form.Password,
		Role:       models.Role(form.Role),
		Department: form.Department,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info().Int("user_id", user.ID).Str("role", string(user.Role)).Msg("user created")
	w.Header().Set("Location", "/users/"+strconv.Itoa(user.ID))
	h.render(w, http.StatusCreated, user.Snapshot())
}

type userPatchForm struct {
	Username   *string `form:"username" validate:"omitempty,max=64"`
	Email      *string `form:"email" validate:"omitempty,email"`
	Password   *string `form:"password"`
	Role       *string `form:"role" validate:"omitempty,role"`
	Department *string `form:"department" validate:"omitempty,department"`
}

// UpdateUser applies the posted fields to a user. Blank fields are left alone.
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok || !h.parseForm(w, r) {
		return
	}
	form := userPatchForm{
		Username:   optional(r, "username"),
		Email:      optional(r, "email"),
		Password:   optional(r, "password"),
		Role:       optional(r, "role"),
		Department: optional(r, "department"),
	}
	if !h.checkForm(w, form) {
		return
	}

	patch := models.UserPatch{
		Username:   form.Username,
		Email:      form.Email,
		Password:   form.Password,
		Department: form.Department,
	}
	if form.Role != nil {
		role := models.Role(*form.Role)
		patch.Role = &role
	}

	user, err := h.directory(r).UpdateUser(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, http.StatusOK, user.Snapshot())
}

// DeleteUser removes a user. The seed admin and the last Admin stay.
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	removed, err := h.dir.DeleteUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !removed {
		h.render(w, http.StatusNotFound, apiError{Detail: "user not found"})
		return
	}
	h.log.Info().Int("user_id", id).Msg("user deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) userID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.render(w, http.StatusNotFound, apiError{Detail: "user not found"})
		return 0, false
	}
	return id, true
}

func snapshots(users []models.User) []models.Snapshot {
	out := make([]models.Snapshot, 0, len(users))
	for _, u := range users {
		out = append(out, u.Snapshot())
	}
	return out
}
