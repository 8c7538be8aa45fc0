package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mattjoyce/hooky/internal/access"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// Users registers and logs in users.
type Users struct {
	db     *storage.DB
	store  *store.Store
	tokens *Tokens
	logger *slog.Logger

	hash func(string) (string, error)
}

func NewUsers(db *storage.DB, s *store.Store, tokens *Tokens, logger *slog.Logger) *Users {
	return &Users{db: db, store: s, tokens: tokens, logger: logger, hash: HashPassword}
}

// Register creates a user with a password.
func (u *Users) Register(ctx context.Context, email, password string) (*store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, access.BadRequest("Email and password are required")
	}
	if len(password) < MinPasswordLength {
		return nil, access.BadRequest("Password must be at least %d characters", MinPasswordLength)
	}

	existing, err := u.store.Users.GetByEmail(ctx, u.db, email)
	if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, access.Conflict("An account with this email already exists")
	}

	hash, err := u.hash(password)
	if err != nil {
		return nil, err
	}
	user := &store.User{Email: email, PasswordHash: &hash}
	if err := u.store.Users.Create(ctx, u.db, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, access.Conflict("An account with this email already exists")
		}
		return nil, err
	}

	u.logger.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login checks credentials and returns the user with a fresh session token.
func (u *Users) Login(ctx context.Context, email, password string) (*store.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", access.BadRequest("Email and password are required")
	}

	user, err := u.store.Users.GetByEmail(ctx, u.db, email)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, "", access.Unauthorized()
		}
		return nil, "", err
	}
	if user.PasswordHash == nil || !CheckPassword(*user.PasswordHash, password) {
		return nil, "", access.Unauthorized()
	}

	token, err := u.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Get returns the live user id.
func (u *Users) Get(ctx context.Context, id string) (*store.User, error) {
	user, err := u.store.Users.GetByID(ctx, u.db, id)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, access.Unauthorized()
	}
	return user, err
}

// Authenticate resolves a session token to a live user id.
func (u *Users) Authenticate(ctx context.Context, token string) (string, bool) {
	claims, err := u.tokens.Parse(token)
	if err != nil {
		return "", false
	}
	if _, err := u.store.Users.GetByID(ctx, u.db, claims.UserID); err != nil {
		return "", false
	}
	return claims.UserID, true
}
