package store

import (
	"context"

	"github.com/mattjoyce/hooky/internal/storage"
)

// UserRepo persists users.
type UserRepo struct{}

const userColumns = "id, email, password_hash, created_at, updated_at"

// Create inserts u, assigning an id and timestamps when unset.
func (UserRepo) Create(ctx context.Context, h storage.Handler, u *User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	now := storage.Now()
	u.CreatedAt, u.UpdatedAt = now, now

	query := h.Rebind(`INSERT INTO users (id, email, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`)
	_, err := h.ExecContext(ctx, query, u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return storage.WrapError(err)
}

// GetByID returns the live user with id.
func (UserRepo) GetByID(ctx context.Context, h storage.Handler, id string) (*User, error) {
	var u User
	query := h.Rebind("SELECT " + userColumns + " FROM users WHERE id = ? AND " + notDeleted)
	if err := h.GetContext(ctx, &u, query, id); err != nil {
		return nil, storage.WrapError(err)
	}
	return &u, nil
}

// GetByEmail returns the live user with the given (already lowercased) email.
func (UserRepo) GetByEmail(ctx context.Context, h storage.Handler, email string) (*User, error) {
	var u User
	query := h.Rebind("SELECT " + userColumns + " FROM users WHERE email = ? AND " + notDeleted)
	if err := h.GetContext(ctx, &u, query, email); err != nil {
		return nil, storage.WrapError(err)
	}
	return &u, nil
}
