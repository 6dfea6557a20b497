package auth

import (
	"context"
	"errors"
	"fmt"

	"expense-approvals/internal/models"
	"expense-approvals/internal/storage"
)

// CurrentSession returns the logged-in user of this profile, or nil.
//
// The stored snapshot is checked against the live record: a deleted user ends
// the session, and a changed one refreshes the snapshot.
func (d *Directory) CurrentSession(ctx context.Context) (*models.User, error) {
	snapshot, err := d.sessionUser(ctx)
	if err != nil || snapshot == nil {
		return nil, err
	}

	live, err := d.GetUser(ctx, snapshot.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, d.ClearSession(ctx)
	}
	if err != nil {
		return nil, err
	}

	fresh := sessionCopy(*live)
	if fresh != *snapshot {
		if err := d.SetCurrentSession(ctx, *live); err != nil {
			return nil, err
		}
	}
	return &fresh, nil
}

// SetCurrentSession logs u in on this profile.
func (d *Directory) SetCurrentSession(ctx context.Context, u models.User) error {
	userKey, flagKey := d.sessionKeys()
	if err := d.store.Save(ctx, userKey, sessionCopy(u)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := d.store.Save(ctx, flagKey, true); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ClearSession logs this profile out.
func (d *Directory) ClearSession(ctx context.Context) error {
	userKey, flagKey := d.sessionKeys()
	if err := d.store.Remove(ctx, userKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if err := d.store.Remove(ctx, flagKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// sessionUser returns the stored snapshot without consulting the directory.
func (d *Directory) sessionUser(ctx context.Context) (*models.User, error) {
	userKey, flagKey := d.sessionKeys()

	var loggedIn bool
	if _, err := d.store.Load(ctx, flagKey, &loggedIn); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !loggedIn {
		return nil, nil
	}

	var u models.User
	found, err := d.store.Load(ctx, userKey, &u)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

func (d *Directory) sessionKeys() (string, string) {
	return storage.SessionKeys(d.profile)
}

// sessionCopy drops the credential from the cached snapshot.
func sessionCopy(u models.User) models.User {
	u.Password = ""
	return u
}
