package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/auth"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/repository"
)

const MinPasswordLength = 8

// errBadCredentials is deliberately vague: it doesn't say whether the email
// or the password was wrong.
var errBadCredentials = apperror.Unauthorized("invalid email or password")

// AuthService handles sign-up, sign-in and the current user's profile.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult is a user together with a freshly issued session token.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignUp creates a password account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, displayName, email, password string) (*AuthResult, error) {
	name, err := validateDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{DisplayName: name, Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	return s.session(user)
}

// SignIn checks an email and password and issues a token.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errBadCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("sign-in rejected", slog.String("userID", user.ID))
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	return s.session(user)
}

// LoginOrRegisterGitHub signs in a GitHub identity, creating the account on
// first use or linking it to a password account with the same email.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	name := strings.TrimSpace(ghUser.DisplayName())
	if r := []rune(name); len(r) > MaxDisplayNameLength {
		name = string(r[:MaxDisplayNameLength])
	}
	ghID := ghUser.ID
	user := &model.User{
		DisplayName: name,
		Email:       strings.ToLower(ghUser.Email),
		GitHubID:    &ghID,
	}
	if err := s.users.UpsertGitHubUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)
	return s.session(user)
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("no user in session")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// Rename changes the caller's display name. Leaderboard rosters and friend
// lists read names from the users table, so they follow immediately.
// Pending friend requests keep the name they were sent with.
func (s *AuthService) Rename(ctx context.Context, id, displayName string) (*model.User, error) {
	name, err := validateDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateDisplayName(ctx, id, name); err != nil {
		return nil, fmt.Errorf("service/auth: renaming %s: %w", id, err)
	}
	return s.GetUserByID(ctx, id)
}

// ValidateToken returns the user id a session token was issued for.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", apperror.Unauthorized("invalid or expired session")
	}
	return userID, nil
}

// TokenService exposes the token lifetime for cookie expiry.
func (s *AuthService) TokenService() *auth.TokenService {
	return s.tokens
}

func (s *AuthService) session(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email address is not valid")
	}
	return email, nil
}
