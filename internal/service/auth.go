// Authentication business logic.
//
// AuthService sits between the HTTP handlers and the repository/auth
// utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt)
//
// KEY RESPONSIBILITIES:
//   - Validate and store new accounts
//   - Check a username/password pair at login
//   - Turn the session's user id back into a user, once per request
//
// WHAT THIS SERVICE DOES NOT DO:
// It never touches the session. Clearing the old session and storing the new
// user id after a successful Authenticate is an HTTP concern, handled by the
// login handler.

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/blog/internal/apperror"
	"github.com/sakif/blog/internal/auth"
	"github.com/sakif/blog/internal/model"
	"github.com/sakif/blog/internal/repository"
)

// Credentials is the register/login form.
// Missing fields arrive as empty strings and fail validation.
type Credentials struct {
	Username string
	Password string
}

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// Register creates a new account.
//
// Fields are checked in order: username first, then password. Input is used
// exactly as typed; usernames are case-sensitive and not trimmed.
//
// A taken username is reported as a Conflict and leaves the table untouched
// (the UNIQUE constraint rejects the insert as a whole). Registration does
// not log the user in.
func (s *AuthService) Register(ctx context.Context, in Credentials) (*model.User, error) {
	if in.Username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required.")
	}
	if in.Password == "" {
		return nil, apperror.ValidationFailed("password", "Password is required.")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", "Password must be 72 bytes or fewer.")
		}
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user %q: %w", in.Username, err)
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Authenticate checks a username/password pair and returns the matching user.
//
// The two failure messages differ ("Incorrect username." vs "Incorrect
// password."), which tells a caller whether an account exists.
func (s *AuthService) Authenticate(ctx context.Context, in Credentials) (*model.User, error) {
	user, err := s.users.GetUserByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Info("login failed: unknown username", slog.String("username", in.Username))
			return nil, apperror.Unauthenticated("Incorrect username.")
		}
		return nil, fmt.Errorf("service/auth: looking up %q: %w", in.Username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			// A stored value bcrypt cannot read. Still just a failed login
			// for the visitor, but worth noticing.
			s.logger.Warn("unreadable password hash",
				slog.Int64("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		s.logger.Info("login failed: wrong password", slog.String("username", in.Username))
		return nil, apperror.Unauthenticated("Incorrect password.")
	}

	s.logger.Info("user logged in",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// ResolveCurrentUser returns the user a session points at.
//
// It returns (nil, nil) when id is zero or the user no longer exists, so a
// stale session makes the visitor anonymous instead of failing the request.
// Any other store error is returned.
func (s *AuthService) ResolveCurrentUser(ctx context.Context, id int64) (*model.User, error) {
	if id == 0 {
		return nil, nil
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Debug("session names a missing user", slog.Int64("userID", id))
			return nil, nil
		}
		return nil, fmt.Errorf("service/auth: resolving user %d: %w", id, err)
	}

	return user, nil
}
