// Package auth keeps the user directory and the per-profile login session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"expense-approvals/internal/models"
	"expense-approvals/internal/storage"
)

var (
	// ErrNotFound is returned when no user has the requested id.
	ErrNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when another user already has the username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrProtectedUser is returned when deleting the seed admin.
	ErrProtectedUser = errors.New("the seed admin user cannot be deleted")
	// ErrLastAdmin is returned when a change would leave no Admin.
	ErrLastAdmin = errors.New("at least one admin must remain")

	errUnchanged = errors.New("unchanged")
)

// SeedAdminID is the id of the undeletable admin created on first start.
const SeedAdminID = 1

// userSeqKey holds the highest user id ever assigned.
const userSeqKey = "userSeq"

// SeedAdmin returns the initial admin account.
func SeedAdmin() models.User {
	return models.User{
		ID:         SeedAdminID,
		Username:   "admin",
		Email:      "admin@example.com",
		Password:   "admin",
		Role:       models.RoleAdmin,
		Department: "Management",
	}
}

// Directory manages user records and the login session of one browser profile.
type Directory struct {
	store   *storage.Store
	profile string
	hash    bool

	// guards multi-key writes; shared by every profile view
	mu *sync.Mutex
}

// Option configures a Directory.
type Option func(*Directory)

// WithPasswordHashing makes new and changed passwords be stored as bcrypt hashes.
func WithPasswordHashing(enabled bool) Option {
	return func(d *Directory) { d.hash = enabled }
}

// NewDirectory creates a Directory bound to the default profile.
func NewDirectory(store *storage.Store, opts ...Option) *Directory {
	d := &Directory{store: store, mu: &sync.Mutex{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ForProfile returns a view of the directory whose session belongs to profile.
func (d *Directory) ForProfile(profile string) *Directory {
	c := *d
	c.profile = profile
	return &c
}

// EnsureSeed persists the seed admin when no users are stored yet. Empty
// username or password keep the defaults. It reports whether it wrote anything.
func (d *Directory) EnsureSeed(ctx context.Context, username, password string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var users []models.User
	seeded := false
	err := d.store.Update(ctx, storage.UsersKey, &users, func(found bool) error {
		if found {
			return errUnchanged
		}
		admin := SeedAdmin()
		if username != "" {
			admin.Username = username
		}
		if password != "" {
			admin.Password = password
		}
		pw, err := d.storedPassword(admin.Password)
		if err != nil {
			return err
		}
		admin.Password = pw
		users = []models.User{admin}
		seeded = true
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seed users: %w", err)
	}
	return seeded, d.raiseSeq(ctx, SeedAdminID)
}

// ListUsers returns all users in insertion order, or the seed admin when
// nothing has been stored yet.
func (d *Directory) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	found, err := d.store.Load(ctx, storage.UsersKey, &users)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if !found {
		return []models.User{SeedAdmin()}, nil
	}
	return users, nil
}

// GetUser returns the user with the given id.
func (d *Directory) GetUser(ctx context.Context, id int) (*models.User, error) {
	users, err := d.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, ErrNotFound
}

// AddUser assigns the next id to u and stores it. Ids are never reused,
// even after the user holding the highest id is deleted.
func (d *Directory) AddUser(ctx context.Context, u models.NewUser) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var seq int
	if _, err := d.store.Load(ctx, userSeqKey, &seq); err != nil {
		return nil, fmt.Errorf("load user sequence: %w", err)
	}

	password, err := d.storedPassword(u.Password)
	if err != nil {
		return nil, err
	}

	var users []models.User
	var created models.User
	err = d.store.Update(ctx, storage.UsersKey, &users, func(found bool) error {
		if !found {
			users = []models.User{SeedAdmin()}
		}
		next := seq
		for _, existing := range users {
			if existing.Username == u.Username {
				return ErrUsernameTaken
			}
			next = max(next, existing.ID)
		}
		created = models.User{
			ID:         next + 1,
			Username:   u.Username,
			Email:      u.Email,
			Password:   password,
			Role:       u.Role,
			Department: u.Department,
		}
		users = append(users, created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := d.raiseSeq(ctx, created.ID); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateUser merges patch into the user with the given id. When that user is
// logged in on this profile the session snapshot is refreshed too.
func (d *Directory) UpdateUser(ctx context.Context, id int, patch models.UserPatch) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if patch.Password != nil {
		pw, err := d.storedPassword(*patch.Password)
		if err != nil {
			return nil, err
		}
		patch.Password = &pw
	}

	var users []models.User
	var updated models.User
	err := d.store.Update(ctx, storage.UsersKey, &users, func(found bool) error {
		if !found {
			users = []models.User{SeedAdmin()}
		}
		idx := indexOf(users, id)
		if idx < 0 {
			return ErrNotFound
		}
		updated = patch.Apply(users[idx])
		if updated.Username != users[idx].Username {
			for _, other := range users {
				if other.ID != id && other.Username == updated.Username {
					return ErrUsernameTaken
				}
			}
		}
		if users[idx].Role == models.RoleAdmin && updated.Role != models.RoleAdmin && countAdmins(users) == 1 {
			return ErrLastAdmin
		}
		users[idx] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	current, err := d.sessionUser(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil && current.ID == id {
		if err := d.SetCurrentSession(ctx, updated); err != nil {
			return nil, err
		}
	}
	return &updated, nil
}

// DeleteUser removes the user with the given id and reports whether one was
// removed. The seed admin and the last Admin cannot be deleted.
func (d *Directory) DeleteUser(ctx context.Context, id int) (bool, error) {
	if id == SeedAdminID {
		return false, ErrProtectedUser
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var users []models.User
	err := d.store.Update(ctx, storage.UsersKey, &users, func(found bool) error {
		if !found {
			return errUnchanged
		}
		idx := indexOf(users, id)
		if idx < 0 {
			return errUnchanged
		}
		if users[idx].Role == models.RoleAdmin && countAdmins(users) == 1 {
			return ErrLastAdmin
		}
		users = append(users[:idx], users[idx+1:]...)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CheckLogin returns the user whose username and password both match
// exactly, or nil when none does.
func (d *Directory) CheckLogin(ctx context.Context, username, password string) (*models.User, error) {
	users, err := d.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Username == username && CheckPassword(password, users[i].Password) {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (d *Directory) storedPassword(password string) (string, error) {
	if !d.hash || IsHashed(password) {
		return password, nil
	}
	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (d *Directory) raiseSeq(ctx context.Context, id int) error {
	var seq int
	err := d.store.Update(ctx, userSeqKey, &seq, func(bool) error {
		seq = max(seq, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save user sequence: %w", err)
	}
	return nil
}

func indexOf(users []models.User, id int) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func countAdmins(users []models.User) int {
	n := 0
	for _, u := range users {
		if u.Role == models.RoleAdmin {
			n++
		}
	}
	return n
}
